package play

import (
	"fmt"
	"strings"
)

// Sink selects where a sample is played
type Sink int

const (
	SinkDefault Sink = iota
	SinkMixer
	SinkBoth
)

func (s Sink) String() string {
	switch s {
	case SinkDefault:
		return "Default"
	case SinkMixer:
		return "Mixer"
	case SinkBoth:
		return "Both"
	}
	return fmt.Sprintf("Sink(%d)", int(s))
}

// Next cycles Default, Mixer, Both, Default
func (s Sink) Next() Sink {
	return (s + 1) % 3
}

// ParseSink accepts default, mixer or both in any case
func ParseSink(name string) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "default":
		return SinkDefault, nil
	case "mixer":
		return SinkMixer, nil
	case "both":
		return SinkBoth, nil
	}
	return SinkDefault, fmt.Errorf("unknown sink %q (expected default, mixer or both)", name)
}

// Targets returns one playback target per invocation. An empty target is the default output.
func (s Sink) Targets(mixerTarget string) []string {
	switch s {
	case SinkMixer:
		return []string{mixerTarget}
	case SinkBoth:
		return []string{"", mixerTarget}
	}
	return []string{""}
}
