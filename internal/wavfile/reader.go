package wavfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/go-audio/wav"
	"github.com/spf13/afero"

	"github.com/audiolibrelab/soundboard/internal/audio"
)

// Info describes a WAV file header
type Info struct {
	Format      audio.Format
	BitDepth    int
	AudioFormat int
	DataBytes   int
}

// BlockAlign is the size in bytes of one frame
func (i Info) BlockAlign() int {
	return i.BitDepth / 8 * int(i.Format.Channels)
}

// Frames returns the number of complete frames in the data chunk
func (i Info) Frames() int {
	if i.BlockAlign() == 0 {
		return 0
	}
	return i.DataBytes / i.BlockAlign()
}

// Duration returns the play time of the data chunk
func (i Info) Duration() time.Duration {
	if i.Format.SampleRate == 0 {
		return 0
	}
	return time.Duration(i.Frames()) * time.Second / time.Duration(i.Format.SampleRate)
}

// openPCM positions a decoder at the start of the data chunk
func openPCM(r io.ReadSeeker) (*wav.Decoder, Info, error) {
	d := wav.NewDecoder(r)
	if err := d.FwdToPCM(); err != nil {
		return nil, Info{}, fmt.Errorf("no audio data: %w", err)
	}
	// FwdToPCM reports header errors only through Err
	if err := d.Err(); err != nil {
		return nil, Info{}, fmt.Errorf("invalid WAV header: %w", err)
	}
	if d.PCMChunk == nil {
		return nil, Info{}, fmt.Errorf("no data chunk")
	}

	info := Info{
		Format:      audio.Format{SampleRate: d.SampleRate, Channels: d.NumChans},
		BitDepth:    int(d.BitDepth),
		AudioFormat: int(d.WavAudioFormat),
		DataBytes:   d.PCMSize,
	}
	if !info.Format.Valid() || info.BitDepth%8 != 0 || info.BitDepth == 0 {
		return nil, Info{}, fmt.Errorf("unsupported WAV layout: %s, %d bits", info.Format, info.BitDepth)
	}
	return d, info, nil
}

// ReadInfo returns the header of the WAV file at path
func ReadInfo(fs afero.Fs, path string) (Info, error) {
	f, err := fs.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	_, info, err := openPCM(f)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// ReadFloat32 decodes a 32-bit float WAV file into interleaved samples
func ReadFloat32(fs afero.Fs, path string) ([]float32, audio.Format, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, audio.Format{}, err
	}
	defer f.Close()

	d, info, err := openPCM(f)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("%s: %w", path, err)
	}
	if info.AudioFormat != FormatFloat || info.BitDepth != 32 {
		return nil, audio.Format{}, fmt.Errorf("%s: not a 32-bit float WAV (format %d, %d bits)", path, info.AudioFormat, info.BitDepth)
	}

	raw := make([]byte, info.Frames()*info.BlockAlign())
	if _, err := io.ReadFull(d.PCMChunk.R, raw); err != nil {
		return nil, audio.Format{}, fmt.Errorf("%s: failed to read samples: %w", path, err)
	}

	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, info.Format, nil
}
