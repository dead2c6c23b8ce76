package wavfile

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// PitchedRate scales rate by 2^(semitones/12), rounded to the nearest Hz
func PitchedRate(rate uint32, semitones float64) uint32 {
	return uint32(math.Round(float64(rate) * math.Pow(2, semitones/12)))
}

// PitchedCopy writes a copy of src into tempDir whose sample data is unchanged
// but whose declared sample rate is shifted by semitones. Playback speed and
// pitch move together. The caller owns the returned file.
func PitchedCopy(fs afero.Fs, src string, semitones float64, tempDir string) (string, error) {
	in, err := fs.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	d, info, err := openPCM(in)
	if err != nil {
		return "", fmt.Errorf("%s: %w", src, err)
	}

	if info.Frames() == 0 {
		return "", fmt.Errorf("%s: no audio frames", src)
	}

	rate := PitchedRate(info.Format.SampleRate, semitones)
	if rate == 0 {
		return "", fmt.Errorf("pitch shift %.2f leaves no sample rate", semitones)
	}

	if err := fs.MkdirAll(tempDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	dst := filepath.Join(tempDir, fmt.Sprintf("pitched_sample_%s.wav", uuid.NewString()))

	out, err := fs.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if err := copyFrames(d.PCMChunk.R, out, info, rate); err != nil {
		out.Close()
		fs.Remove(dst)
		return "", fmt.Errorf("failed to write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		fs.Remove(dst)
		return "", fmt.Errorf("failed to close %s: %w", dst, err)
	}

	slog.Debug("Pitched copy created", "src", src, "dst", dst, "semitones", semitones, "rate", rate)
	return dst, nil
}

// copyFrames re-encodes raw frames from r under a new sample rate
func copyFrames(r io.Reader, w io.WriteSeeker, info Info, rate uint32) error {
	out := newBufferedSeeker(w)
	enc := wav.NewEncoder(out, int(rate), info.BitDepth, int(info.Format.Channels), info.AudioFormat)

	frame := make([]byte, info.BlockAlign())
	for i := 0; i < info.Frames(); i++ {
		if _, err := io.ReadFull(r, frame); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := enc.WriteFrame(frame); err != nil {
			return err
		}
	}

	if err := enc.Close(); err != nil {
		return err
	}
	return out.Flush()
}
