// Package panel drives a button/encoder panel: device abstraction, key
// images, the controller state machine and the per-device session loop.
package panel

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

// ErrDisconnected is returned by Device.Read once the device is gone
var ErrDisconnected = errors.New("panel disconnected")

// EventKind identifies a hardware input
type EventKind int

const (
	ButtonDown EventKind = iota
	ButtonUp
	EncoderDown
	EncoderUp
	EncoderTwist
)

func (k EventKind) String() string {
	switch k {
	case ButtonDown:
		return "ButtonDown"
	case ButtonUp:
		return "ButtonUp"
	case EncoderDown:
		return "EncoderDown"
	case EncoderUp:
		return "EncoderUp"
	case EncoderTwist:
		return "EncoderTwist"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one discrete input. Index is the key or dial, Ticks the signed twist amount.
type Event struct {
	Kind  EventKind
	Index int
	Ticks int
}

func (e Event) String() string {
	if e.Kind == EncoderTwist {
		return fmt.Sprintf("%s(%d, %+d)", e.Kind, e.Index, e.Ticks)
	}
	return fmt.Sprintf("%s(%d)", e.Kind, e.Index)
}

// DeviceInfo describes an attached panel
type DeviceInfo struct {
	ID    string
	Name  string
	Keys  int
	Dials int
}

// Driver enumerates and opens panels
type Driver interface {
	List() ([]DeviceInfo, error)
	Connect(info DeviceInfo) (Device, error)
}

// Device is one connected panel. Image writes are staged until Flush.
type Device interface {
	Info() DeviceInfo

	// Read waits up to timeout for input. An empty slice means the timeout elapsed.
	Read(ctx context.Context, timeout time.Duration) ([]Event, error)

	SetButtonImage(key int, img image.Image) error
	SetLCDImage(img image.Image) error
	ClearAllButtonImages() error
	SetBrightness(percent int) error
	Flush() error
	Close() error
}
