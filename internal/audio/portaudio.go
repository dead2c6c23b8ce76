package audio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"

	"github.com/audiolibrelab/soundboard/internal/config"
)

// PortAudioSource captures from the default PortAudio input device
type PortAudioSource struct {
	cfg config.AudioConfig
}

// NewPortAudioSource creates a new PortAudio-based capture source
func NewPortAudioSource(cfg config.AudioConfig) *PortAudioSource {
	return &PortAudioSource{cfg: cfg}
}

// GetType returns the backend type
func (s *PortAudioSource) GetType() BackendType {
	return BackendTypePortAudio
}

// ListSources returns the names of devices with input channels
func (s *PortAudioSource) ListSources() ([]string, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list PortAudio devices: %w", err)
	}

	var names []string
	for _, dev := range devices {
		if dev.MaxInputChannels > 0 {
			names = append(names, fmt.Sprintf("%s (%d ch, %.0f Hz)", dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate))
		}
	}
	return names, nil
}

// Run opens the input stream and feeds sink from the PortAudio callback until ctx is done
func (s *PortAudioSource) Run(ctx context.Context, sink Sink) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	// The callback runs on the PortAudio thread; sink.OnSamples must not block.
	stream, err := portaudio.OpenDefaultStream(
		s.cfg.Channels, // input channels
		0,              // no output
		float64(s.cfg.SampleRate),
		s.cfg.FramesPerBuffer,
		func(in []float32) {
			sink.OnSamples(in)
		},
	)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	defer stream.Close()

	info := stream.Info()
	format := Format{SampleRate: uint32(s.cfg.SampleRate), Channels: uint16(s.cfg.Channels)}
	if info != nil && info.SampleRate > 0 {
		format.SampleRate = uint32(info.SampleRate)
	}
	sink.OnFormatNegotiated(format)

	if err := stream.Start(); err != nil {
		return fmt.Errorf("failed to start input stream: %w", err)
	}
	slog.Info("PortAudio capture started", "format", format.String(), "frames_per_buffer", s.cfg.FramesPerBuffer)

	<-ctx.Done()

	if err := stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	slog.Info("PortAudio capture stopped")
	return nil
}
