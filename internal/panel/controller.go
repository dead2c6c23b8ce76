package panel

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/audiolibrelab/soundboard/internal/capture"
	"github.com/audiolibrelab/soundboard/internal/control"
	"github.com/audiolibrelab/soundboard/internal/play"
)

// Dials
const (
	DialMode   = 0
	DialVolume = 1
	DialPitch  = 2
	DialDelete = 3
)

// Per-tick steps and limits of the edit dials
const (
	VolumeStep    = 0.05
	PitchStep     = 0.1
	MaxVolume     = 1.5
	DefaultVolume = 1.0
)

const noKey = -1

// Mode is the interaction mode of a panel
type Mode int

const (
	Playback Mode = iota
	Edit
)

func (m Mode) String() string {
	if m == Edit {
		return "Edit"
	}
	return "Playback"
}

// Player starts playbacks without waiting for them
type Player interface {
	Dispatch(ctx context.Context, req play.Request)
}

// Slots binds keys to recording files
type Slots interface {
	Keys() int
	Path(key int) (string, error)
	Exists(key int) bool
	Remove(key int) error
}

// Controller is the state machine of one panel. It is driven from a single
// goroutine and is not safe for concurrent use.
type Controller struct {
	device     Device
	images     *ImageSet
	sender     control.Sender
	player     Player
	slots      Slots
	timeout    time.Duration
	brightness int
	keys       int

	mode      Mode
	sink      play.Sink
	volume    map[int]float64
	pitch     map[int]float64
	activeKey int
	selected  int
}

// ControllerOption configures a Controller
type ControllerOption func(*Controller)

// WithImages sets the rendered images
func WithImages(images *ImageSet) ControllerOption {
	return func(c *Controller) { c.images = images }
}

// WithCommandTimeout bounds every command round trip
func WithCommandTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.timeout = d }
}

// WithBrightness sets the brightness applied at session start
func WithBrightness(percent int) ControllerOption {
	return func(c *Controller) { c.brightness = percent }
}

// NewController creates a controller in Playback mode routing to the default sink
func NewController(device Device, sender control.Sender, player Player, slots Slots, opts ...ControllerOption) *Controller {
	c := &Controller{
		device:     device,
		images:     DefaultImages(),
		sender:     sender,
		player:     player,
		slots:      slots,
		timeout:    5 * time.Second,
		brightness: 50,
		mode:       Playback,
		sink:       play.SinkDefault,
		volume:     make(map[int]float64),
		pitch:      make(map[int]float64),
		activeKey:  noKey,
		selected:   noKey,
	}
	for _, opt := range opts {
		opt(c)
	}

	c.keys = slots.Keys()
	if n := device.Info().Keys; n > 0 && n < c.keys {
		c.keys = n
	}
	return c
}

// Mode returns the interaction mode
func (c *Controller) Mode() Mode { return c.mode }

// Sink returns the playback routing
func (c *Controller) Sink() play.Sink { return c.sink }

// ActiveKey returns the key being recorded, or -1
func (c *Controller) ActiveKey() int { return c.activeKey }

// Selected returns the key selected in Edit mode, or -1
func (c *Controller) Selected() int { return c.selected }

// Volume returns the playback volume of key
func (c *Controller) Volume(key int) float64 {
	if v, ok := c.volume[key]; ok {
		return v
	}
	return DefaultVolume
}

// Pitch returns the pitch shift of key in semitones
func (c *Controller) Pitch(key int) float64 {
	if p, ok := c.pitch[key]; ok {
		return p
	}
	return 0
}

// Start prepares the panel: brightness, blank keys, then the mode strip and every key
func (c *Controller) Start() error {
	if err := c.device.SetBrightness(c.brightness); err != nil {
		return fmt.Errorf("failed to set brightness: %w", err)
	}
	if err := c.device.ClearAllButtonImages(); err != nil {
		return fmt.Errorf("failed to clear key images: %w", err)
	}
	if err := c.renderMode(); err != nil {
		return err
	}
	for key := 0; key < c.keys; key++ {
		if err := c.restore(key); err != nil {
			return err
		}
	}
	return c.flush()
}

// HandleEvent applies one input. A returned error is a device failure and ends the session.
func (c *Controller) HandleEvent(ctx context.Context, ev Event) error {
	slog.Debug("Panel event", "event", ev.String(), "mode", c.mode.String())

	switch ev.Kind {
	case EncoderTwist:
		return c.onTwist(ev.Index, ev.Ticks)
	case EncoderDown:
		return c.onDialPress(ev.Index)
	case ButtonDown:
		if !c.validKey(ev.Index) {
			return nil
		}
		return c.onButtonDown(ctx, ev.Index)
	case ButtonUp:
		if !c.validKey(ev.Index) {
			return nil
		}
		return c.onButtonUp(ctx, ev.Index)
	}
	return nil
}

func (c *Controller) validKey(key int) bool {
	if key < 0 || key >= c.keys {
		slog.Debug("Ignoring unbound key", "key", key, "keys", c.keys)
		return false
	}
	return true
}

func (c *Controller) onTwist(dial, ticks int) error {
	switch dial {
	case DialMode:
		return c.toggleMode()

	case DialVolume:
		if c.mode != Edit || c.selected == noKey {
			return nil
		}
		v := c.Volume(c.selected) + float64(ticks)*VolumeStep
		v = min(max(v, 0), MaxVolume)
		c.volume[c.selected] = v
		slog.Info("Volume changed", "key", c.selected, "volume", fmt.Sprintf("%.2f", v))

	case DialPitch:
		if c.mode != Edit || c.selected == noKey {
			return nil
		}
		p := c.Pitch(c.selected) + float64(ticks)*PitchStep
		c.pitch[c.selected] = p
		slog.Info("Pitch changed", "key", c.selected, "semitones", fmt.Sprintf("%+.1f", p))
	}
	return nil
}

func (c *Controller) toggleMode() error {
	if c.mode == Edit {
		c.mode = Playback
		if prev := c.selected; prev != noKey {
			c.selected = noKey
			if err := c.restore(prev); err != nil {
				return err
			}
		}
	} else {
		c.mode = Edit
	}
	slog.Info("Mode changed", "mode", c.mode.String())

	if err := c.renderMode(); err != nil {
		return err
	}
	return c.flush()
}

func (c *Controller) onDialPress(dial int) error {
	switch dial {
	case DialMode:
		c.sink = c.sink.Next()
		slog.Info("Playback sink changed", "sink", c.sink.String())
		return nil

	case DialDelete:
		if c.mode != Edit || c.selected == noKey {
			return nil
		}
		return c.deleteSelected()
	}
	return nil
}

func (c *Controller) deleteSelected() error {
	key := c.selected
	c.selected = noKey

	img := c.images.Off
	if err := c.slots.Remove(key); err != nil {
		slog.Error("Delete failed", "key", key, "mode", c.mode.String(), "error", err)
		img = c.images.Play
	} else {
		delete(c.volume, key)
		delete(c.pitch, key)
		slog.Info("Recording deleted", "key", key)
	}

	if err := c.setKey(key, img); err != nil {
		return err
	}
	return c.flush()
}

func (c *Controller) onButtonDown(ctx context.Context, key int) error {
	exists := c.slots.Exists(key)

	if c.mode == Edit {
		if !exists {
			return nil
		}
		return c.toggleSelection(key)
	}

	if exists {
		if err := c.setKey(key, c.images.Pressed); err != nil {
			return err
		}
		return c.flush()
	}

	path, err := c.slots.Path(key)
	if err != nil {
		slog.Error("No file bound to key", "key", key, "error", err)
		return nil
	}

	resp, err := c.send(ctx, capture.Start(path))
	if err != nil {
		slog.Error("Capture engine unreachable", "key", key, "transition", "Listening -> Recording", "error", err)
		return nil
	}
	if !resp.IsOk() {
		slog.Warn("Start refused", "key", key, "path", path, "response", resp.String(), "active_key", c.activeKey)
		return nil
	}

	c.activeKey = key
	slog.Info("Recording started", "key", key, "path", path)
	if err := c.setKey(key, c.images.Pressed); err != nil {
		return err
	}
	return c.flush()
}

func (c *Controller) toggleSelection(key int) error {
	prev := c.selected
	if prev == key {
		c.selected = noKey
		slog.Info("Key deselected", "key", key)
		if err := c.restore(key); err != nil {
			return err
		}
		return c.flush()
	}

	if prev != noKey {
		if err := c.restore(prev); err != nil {
			return err
		}
	}
	c.selected = key
	slog.Info("Key selected", "key", key, "volume", c.Volume(key), "semitones", c.Pitch(key))
	if err := c.setKey(key, c.images.Pressed); err != nil {
		return err
	}
	return c.flush()
}

func (c *Controller) onButtonUp(ctx context.Context, key int) error {
	// A recording is stopped by releasing its key even if the mode changed meanwhile
	if c.activeKey == key {
		return c.stopRecording(ctx)
	}

	if c.mode == Edit || !c.slots.Exists(key) {
		return nil
	}

	path, err := c.slots.Path(key)
	if err != nil {
		return nil
	}
	req := play.Request{
		Path:      path,
		Sink:      c.sink,
		Volume:    c.Volume(key),
		Semitones: c.Pitch(key),
	}
	slog.Info("Playing", "key", key, "sink", req.Sink.String(), "volume", req.Volume, "semitones", req.Semitones)
	c.player.Dispatch(ctx, req)

	if err := c.setKey(key, c.images.Play); err != nil {
		return err
	}
	return c.flush()
}

func (c *Controller) stopRecording(ctx context.Context) error {
	key := c.activeKey

	resp, err := c.send(ctx, capture.Stop())
	if err != nil {
		slog.Error("Capture engine unreachable, recording still active", "key", key, "transition", "Recording -> Listening", "error", err)
		return nil
	}
	if !resp.IsOk() {
		// The engine is not recording, so neither are we
		slog.Warn("Stop refused, clearing active key", "key", key, "response", resp.String())
	} else {
		slog.Info("Recording stopped", "key", key)
	}

	c.activeKey = noKey
	if err := c.restore(key); err != nil {
		return err
	}
	return c.flush()
}

// HandleSlotChange re-renders a key whose file changed outside the panel
func (c *Controller) HandleSlotChange(key int, exists bool) error {
	if !c.validKey(key) || key == c.activeKey {
		return nil
	}
	if key == c.selected {
		if exists {
			return nil
		}
		c.selected = noKey
		slog.Info("Selected recording vanished", "key", key)
	}
	if err := c.restore(key); err != nil {
		return err
	}
	return c.flush()
}

// Shutdown stops a recording still in progress and blanks the panel
func (c *Controller) Shutdown(ctx context.Context) error {
	c.selected = noKey

	if c.activeKey != noKey {
		key := c.activeKey
		resp, err := c.send(ctx, capture.Stop())
		switch {
		case err != nil:
			slog.Error("Failed to stop recording at shutdown", "key", key, "error", err)
		case !resp.IsOk():
			slog.Warn("Stop refused at shutdown", "key", key, "response", resp.String())
			c.activeKey = noKey
		default:
			slog.Info("Recording stopped at shutdown", "key", key)
			c.activeKey = noKey
		}
	}

	if err := c.device.ClearAllButtonImages(); err != nil {
		return fmt.Errorf("failed to clear key images: %w", err)
	}
	return c.flush()
}

func (c *Controller) send(ctx context.Context, cmd capture.Command) (capture.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.sender.Send(ctx, cmd)
}

// restore shows the resting image of key: play when it has a recording, off otherwise
func (c *Controller) restore(key int) error {
	if c.slots.Exists(key) {
		return c.setKey(key, c.images.Play)
	}
	return c.setKey(key, c.images.Off)
}

func (c *Controller) setKey(key int, img image.Image) error {
	if err := c.device.SetButtonImage(key, img); err != nil {
		return fmt.Errorf("failed to set image of key %d: %w", key, err)
	}
	return nil
}

func (c *Controller) renderMode() error {
	img := c.images.LCDPlayback
	if c.mode == Edit {
		img = c.images.LCDEdit
	}
	if err := c.device.SetLCDImage(img); err != nil {
		return fmt.Errorf("failed to set mode strip: %w", err)
	}
	return nil
}

func (c *Controller) flush() error {
	if err := c.device.Flush(); err != nil {
		return fmt.Errorf("failed to flush panel: %w", err)
	}
	return nil
}
