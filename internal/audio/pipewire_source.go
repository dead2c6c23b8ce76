package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/audiolibrelab/soundboard/internal/config"
)

// stopTimeout bounds how long pw-record gets to exit after SIGINT
const stopTimeout = 5 * time.Second

// PipeWireSource captures interleaved float32 samples from pw-record
type PipeWireSource struct {
	cfg      config.AudioConfig
	pipewire *PipeWire
}

// NewPipeWireSource creates a new PipeWire-based capture source
func NewPipeWireSource(cfg config.AudioConfig) *PipeWireSource {
	return &PipeWireSource{
		cfg:      cfg,
		pipewire: NewPipeWire(),
	}
}

// GetType returns the backend type
func (s *PipeWireSource) GetType() BackendType {
	return BackendTypePipeWire
}

// ListSources returns the PipeWire output ports that can be captured
func (s *PipeWireSource) ListSources() ([]string, error) {
	return s.pipewire.ListOutputPorts()
}

// buildArgs constructs the pw-record command line
func (s *PipeWireSource) buildArgs() []string {
	args := []string{
		"pw-record",
		"--raw",
		"--format", "f32",
		"--rate", fmt.Sprintf("%d", s.cfg.SampleRate),
		"--channels", fmt.Sprintf("%d", s.cfg.Channels),
	}
	if s.cfg.Device != "" {
		args = append(args, "--target", s.cfg.Device)
	}
	if s.cfg.CaptureSink {
		args = append(args, "-P", "stream.capture.sink=true")
	}
	return append(args, "-")
}

// Run starts pw-record and feeds sink until ctx is cancelled or the process exits
func (s *PipeWireSource) Run(ctx context.Context, sink Sink) error {
	if err := s.pipewire.ValidateTarget(s.cfg.Device); err != nil {
		return fmt.Errorf("invalid capture device: %w", err)
	}

	args := s.buildArgs()
	slog.Info("Starting PipeWire capture", "command", strings.Join(args, " "))

	cmd := exec.Command(args[0], args[1:]...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start pw-record: %w", err)
	}

	go logOutput(stderr, "stderr")

	format := Format{SampleRate: uint32(s.cfg.SampleRate), Channels: uint16(s.cfg.Channels)}
	chunkSamples := s.cfg.FramesPerBuffer * s.cfg.Channels

	readDone := make(chan error, 1)
	go func() {
		readDone <- readChunks(stdout, format, chunkSamples, sink)
	}()

	select {
	case <-ctx.Done():
		stopProcess(cmd)
		<-readDone
		return nil
	case err := <-readDone:
		waitErr := cmd.Wait()
		if err != nil {
			return fmt.Errorf("pw-record stream failed: %w", err)
		}
		if waitErr != nil {
			return fmt.Errorf("pw-record exited: %w", waitErr)
		}
		return nil
	}
}

// readChunks decodes little-endian float32 samples from r into fixed-size chunks.
// The format is announced once, before the first chunk. A trailing partial chunk is
// delivered as-is and a trailing partial sample is discarded.
func readChunks(r io.Reader, format Format, chunkSamples int, sink Sink) error {
	if chunkSamples <= 0 {
		chunkSamples = 1024
	}
	raw := make([]byte, chunkSamples*4)
	chunk := make([]float32, chunkSamples)
	announced := false

	for {
		n, err := io.ReadFull(r, raw)
		samples := n / 4
		if samples > 0 {
			if !announced {
				sink.OnFormatNegotiated(format)
				announced = true
			}
			for i := 0; i < samples; i++ {
				chunk[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
			}
			sink.OnSamples(chunk[:samples])
		}

		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// logOutput forwards process output lines to the debug log
func logOutput(pipe io.ReadCloser, label string) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		slog.Debug("pw-record output", "stream", label, "line", scanner.Text())
	}
	pipe.Close()
}

// stopProcess interrupts the process and kills it if it ignores the interrupt
func stopProcess(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}

	slog.Debug("Sending SIGINT to pw-record process")
	if err := cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Debug("Failed to send interrupt to pw-record, killing", "error", err)
		cmd.Process.Kill()
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) && exitErr.ProcessState != nil {
				slog.Debug("pw-record exited after interrupt", "state", exitErr.ProcessState.String())
				return
			}
			slog.Debug("pw-record wait failed", "error", err)
		}
	case <-time.After(stopTimeout):
		slog.Warn("pw-record did not exit within timeout, force killing")
		cmd.Process.Kill()
		<-done
	}
}
