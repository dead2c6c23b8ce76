package audio

import (
	"context"
	"fmt"
)

// Format describes a negotiated capture stream
type Format struct {
	SampleRate uint32 `json:"sample_rate" yaml:"sample_rate"`
	Channels   uint16 `json:"channels" yaml:"channels"`
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch", f.SampleRate, f.Channels)
}

// Valid reports whether the format can describe a stream
func (f Format) Valid() bool {
	return f.SampleRate > 0 && f.Channels > 0
}

// Sink receives everything a capture stream produces.
//
// OnSamples is called from the real-time thread of the backend. Implementations
// must not block and must copy the chunk if they keep it, the backend reuses it.
type Sink interface {
	OnFormatNegotiated(format Format)
	OnSamples(chunk []float32)
}

// Source is a capture stream that feeds a Sink until the context is cancelled
type Source interface {
	Run(ctx context.Context, sink Sink) error

	// ListSources returns the capture endpoints the backend can see
	ListSources() ([]string, error)

	// GetType returns the backend type
	GetType() BackendType
}
