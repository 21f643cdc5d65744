package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

// ErrUnsupportedWAV is returned for WAV files that are not PCM.
var ErrUnsupportedWAV = errors.New("only PCM WAV files are supported")

// NewFileSource streams a WAV or raw PCM file paced at interval per chunk.
func NewFileSource(path string, chunkSize int, interval time.Duration) *ReaderSource {
	return newReaderSource("file", func(context.Context) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open audio file: %w", err)
		}
		br := bufio.NewReader(f)
		if err := skipWAVHeader(br); err != nil {
			f.Close()
			return nil, err
		}
		return struct {
			io.Reader
			io.Closer
		}{br, f}, nil
	}, chunkSize, interval)
}

// skipWAVHeader consumes a 44-byte RIFF/WAVE header if present. Raw PCM is left
// untouched.
func skipWAVHeader(br *bufio.Reader) error {
	header, err := br.Peek(wavHeaderSize)
	if err != nil {
		// shorter than a header, so raw audio
		return nil
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return nil
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	if audioFormat != 1 {
		return ErrUnsupportedWAV
	}

	_, err = br.Discard(wavHeaderSize)
	return err
}

// WAVFormat describes the fmt chunk of a PCM WAV header.
type WAVFormat struct {
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ReadWAVFormat returns the format of a WAV file, or ok=false for raw audio.
func ReadWAVFormat(path string) (WAVFormat, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return WAVFormat{}, false, err
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return WAVFormat{}, false, nil
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return WAVFormat{}, false, nil
	}
	return WAVFormat{
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}, true, nil
}
