package audio

import (
	"fmt"
	"time"

	"live-transcription-service/internal/config"
)

// NewSource builds the source selected by cfg.Source.
func NewSource(cfg config.AudioConfig, sampleRateHz int) (Source, error) {
	chunkDuration := cfg.ChunkDuration
	if chunkDuration <= 0 {
		chunkDuration = 100 * time.Millisecond
	}
	size := ChunkSize(sampleRateHz, chunkDuration)

	switch cfg.Source {
	case "command", "":
		argv := DefaultCaptureArgs(sampleRateHz)
		if cfg.Command != "" {
			argv = ParseCommand(cfg.Command)
		}
		return NewCommandSource(argv, size), nil
	case "stdin":
		return NewStdinSource(size), nil
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("AUDIO_PATH is required for the file source")
		}
		return NewFileSource(cfg.Path, size, chunkDuration), nil
	case "silence":
		return NewSilenceSource(size, chunkDuration), nil
	default:
		return nil, fmt.Errorf("unknown audio source %q", cfg.Source)
	}
}
