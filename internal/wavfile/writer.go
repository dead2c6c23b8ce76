// Package wavfile reads and writes the WAV files behind the panel keys.
package wavfile

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/soundboard/internal/audio"
)

// WAV audio format codes
const (
	FormatPCM   = 1
	FormatFloat = 3
)

// Writer saves recordings as 32-bit float WAV files
type Writer struct {
	fs afero.Fs
}

// NewWriter creates a writer on fs. A nil fs means the OS filesystem.
func NewWriter(fs afero.Fs) *Writer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Writer{fs: fs}
}

// Write encodes buf at path. An empty buffer creates no file.
func (w *Writer) Write(buf *audio.Buffer, format audio.Format, path string) error {
	if buf.Len() == 0 {
		slog.Info("Recording is empty, no file written", "path", path)
		return nil
	}
	if !format.Valid() {
		return fmt.Errorf("cannot write %s: invalid format %s", path, format)
	}

	if err := w.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	f, err := w.fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	out := newBufferedSeeker(f)
	enc := wav.NewEncoder(out, int(format.SampleRate), 32, int(format.Channels), FormatFloat)

	channels := int(format.Channels)
	frame := make([]float32, 0, channels)
	err = buf.Each(func(seg []float32) error {
		for _, sample := range seg {
			frame = append(frame, sample)
			if len(frame) == channels {
				if err := enc.WriteFrame(frame); err != nil {
					return err
				}
				frame = frame[:0]
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if len(frame) > 0 {
		slog.Debug("Dropping incomplete trailing frame", "path", path, "samples", len(frame))
	}

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	if err := out.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}

	slog.Info("Recording saved", "path", path, "samples", buf.Len(), "format", format.String())
	return nil
}

// bufferedSeeker batches the encoder's small writes and flushes before every seek
type bufferedSeeker struct {
	f io.WriteSeeker
	w *bufio.Writer
}

func newBufferedSeeker(f io.WriteSeeker) *bufferedSeeker {
	return &bufferedSeeker{f: f, w: bufio.NewWriterSize(f, 64*1024)}
}

func (b *bufferedSeeker) Write(p []byte) (int, error) {
	return b.w.Write(p)
}

func (b *bufferedSeeker) Seek(offset int64, whence int) (int64, error) {
	if err := b.w.Flush(); err != nil {
		return 0, err
	}
	return b.f.Seek(offset, whence)
}

func (b *bufferedSeeker) Flush() error {
	return b.w.Flush()
}
