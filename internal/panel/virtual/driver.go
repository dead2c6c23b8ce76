// Package virtual emulates a button/encoder panel in the terminal.
package virtual

import (
	"context"
	"image"
	"log/slog"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/audiolibrelab/soundboard/internal/panel"
)

const (
	// Name is the driver name used in configuration
	Name = "virtual"

	deviceID = "virtual-0"
	maxKeys  = len(buttonKeys)
	numDials = len(dialPressKeys)
)

// Driver offers exactly one terminal panel
type Driver struct {
	keys    int
	options []tea.ProgramOption
}

// NewDriver creates a driver for a panel with the given number of keys.
// options are passed to the bubbletea program.
func NewDriver(keys int, options ...tea.ProgramOption) *Driver {
	if keys <= 0 || keys > maxKeys {
		keys = maxKeys
	}
	return &Driver{keys: keys, options: options}
}

// List implements panel.Driver
func (d *Driver) List() ([]panel.DeviceInfo, error) {
	return []panel.DeviceInfo{{
		ID:    deviceID,
		Name:  "Virtual Panel",
		Keys:  d.keys,
		Dials: numDials,
	}}, nil
}

// Connect starts the terminal program
func (d *Driver) Connect(info panel.DeviceInfo) (panel.Device, error) {
	dev := &Device{
		info:       info,
		events:     make(chan panel.Event, 64),
		done:       make(chan struct{}),
		staged:     make(map[int]image.Image),
		brightness: 100,
	}
	dev.program = tea.NewProgram(newModel(info, dev.events), d.options...)

	go func() {
		defer close(dev.done)
		if _, err := dev.program.Run(); err != nil {
			slog.Error("Virtual panel stopped", "error", err)
		}
	}()
	return dev, nil
}

// Device is a running terminal panel
type Device struct {
	info    panel.DeviceInfo
	program *tea.Program
	events  chan panel.Event
	done    chan struct{}

	mutex      sync.Mutex
	staged     map[int]image.Image
	lcd        image.Image
	brightness int
}

// Info implements panel.Device
func (d *Device) Info() panel.DeviceInfo { return d.info }

// Read implements panel.Device
func (d *Device) Read(ctx context.Context, timeout time.Duration) ([]panel.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-d.events:
		batch := []panel.Event{ev}
		for {
			select {
			case ev := <-d.events:
				batch = append(batch, ev)
			default:
				return batch, nil
			}
		}
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return nil, panel.ErrDisconnected
	}
}

// SetButtonImage implements panel.Device
func (d *Device) SetButtonImage(key int, img image.Image) error {
	if key < 0 || key >= d.info.Keys {
		return nil
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.staged[key] = img
	return nil
}

// SetLCDImage implements panel.Device
func (d *Device) SetLCDImage(img image.Image) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.lcd = img
	return nil
}

// ClearAllButtonImages implements panel.Device
func (d *Device) ClearAllButtonImages() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	clear(d.staged)
	return nil
}

// SetBrightness implements panel.Device
func (d *Device) SetBrightness(percent int) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.brightness = min(max(percent, 0), 100)
	return nil
}

// Flush sends the staged images to the terminal
func (d *Device) Flush() error {
	select {
	case <-d.done:
		return panel.ErrDisconnected
	default:
	}

	d.program.Send(d.frame())
	return nil
}

func (d *Device) frame() frameMsg {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	msg := frameMsg{keys: make([]string, d.info.Keys), lcd: swatch(d.lcd, d.brightness)}
	for key := range msg.keys {
		msg.keys[key] = swatch(d.staged[key], d.brightness)
	}
	return msg
}

// Close stops the terminal program
func (d *Device) Close() error {
	d.program.Quit()
	<-d.done
	return nil
}

// swatch reduces an image to the hex colour of its centre, dimmed by brightness.
// An empty string means a blank key.
func swatch(img image.Image, brightness int) string {
	if img == nil {
		return ""
	}
	b := img.Bounds()
	if b.Empty() {
		return ""
	}
	c, ok := colorful.MakeColor(img.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2))
	if !ok {
		return ""
	}
	return colorful.Color{}.BlendRgb(c, float64(brightness)/100).Clamped().Hex()
}
