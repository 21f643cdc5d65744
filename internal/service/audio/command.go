package audio

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultCaptureArgs builds an arecord invocation for raw mono LINEAR16 at
// sampleRateHz on the default capture device.
func DefaultCaptureArgs(sampleRateHz int) []string {
	return []string{"arecord", "-q", "-t", "raw", "-f", "S16_LE", "-c", "1", "-r", strconv.Itoa(sampleRateHz)}
}

// NewCommandSource captures audio from the stdout of an external program. The
// process is started on Open and killed on Close.
func NewCommandSource(argv []string, chunkSize int) *ReaderSource {
	return newReaderSource("command", func(context.Context) (io.ReadCloser, error) {
		if len(argv) == 0 {
			return nil, fmt.Errorf("empty capture command")
		}
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stderr = os.Stderr
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return nil, fmt.Errorf("capture pipe: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("start %s: %w", argv[0], err)
		}
		return &processReader{ReadCloser: stdout, cmd: cmd}, nil
	}, chunkSize, 0)
}

type processReader struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processReader) Close() error {
	if p.cmd.Process != nil {
		p.cmd.Process.Kill()
	}
	p.ReadCloser.Close()
	// exit status after Kill is expected
	p.cmd.Wait()
	return nil
}

// NewStdinSource reads audio piped into the process. Closing the source closes
// stdin, so it can only be opened once.
func NewStdinSource(chunkSize int) *ReaderSource {
	return newReaderSource("stdin", func(context.Context) (io.ReadCloser, error) {
		return os.Stdin, nil
	}, chunkSize, 0)
}

// ParseCommand splits a command line on whitespace.
func ParseCommand(s string) []string {
	return strings.Fields(s)
}
