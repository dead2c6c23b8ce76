package capture

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/audiolibrelab/soundboard/internal/audio"
)

// Guard refusal messages
const (
	MsgFormatNotKnown   = "Format not known"
	MsgAlreadyRecording = "Already recording"
	MsgNotRecording     = "Not recording"
)

// State is Listening when Path is empty, Recording(Path) otherwise
type State struct {
	Recording bool
	Path      string
}

func (s State) String() string {
	if s.Recording {
		return fmt.Sprintf("Recording(%s)", s.Path)
	}
	return "Listening"
}

// Writer persists a finished recording
type Writer interface {
	Write(buf *audio.Buffer, format audio.Format, path string) error
}

// Engine owns the capture state machine. Handle runs on the command side,
// OnFormatNegotiated and OnSamples run on the audio thread.
type Engine struct {
	writer      Writer
	segmentSize int
	maxSamples  int

	mutex     sync.Mutex
	state     State
	format    audio.Format
	hasFormat bool
	buffer    *audio.Buffer
}

var _ audio.Sink = (*Engine)(nil)

// Option configures an Engine
type Option func(*Engine)

// WithMaxSamples caps the samples kept per recording; 0 means unbounded
func WithMaxSamples(n int) Option {
	return func(e *Engine) { e.maxSamples = n }
}

// WithSegmentSize sets the allocation unit of the recording buffer
func WithSegmentSize(n int) Option {
	return func(e *Engine) { e.segmentSize = n }
}

// NewEngine creates an engine in the Listening state with no known format
func NewEngine(writer Writer, opts ...Option) *Engine {
	e := &Engine{
		writer:      writer,
		segmentSize: audio.DefaultSegmentSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle applies one command and returns its response. It never runs on the audio thread.
func (e *Engine) Handle(cmd Command) Response {
	switch cmd.Kind {
	case CommandStart:
		return e.start(cmd.Path)
	case CommandStop:
		return e.stop()
	case CommandStatus:
		return StatusOf(e.State().String())
	}
	return Errorf("Unknown command %q", cmd.Kind)
}

func (e *Engine) start(path string) Response {
	if path == "" {
		return Errorf("Start requires a path")
	}

	// Allocated before taking the lock, first segment included, so neither the
	// critical section nor the first OnSamples allocates
	fresh := audio.NewBuffer(e.segmentSize, e.maxSamples)
	fresh.Reserve()

	e.mutex.Lock()
	if !e.hasFormat {
		e.mutex.Unlock()
		slog.Warn("Start refused", "path", path, "reason", MsgFormatNotKnown)
		return Errorf(MsgFormatNotKnown)
	}
	if e.state.Recording {
		current := e.state.Path
		e.mutex.Unlock()
		slog.Warn("Start refused", "path", path, "recording", current, "reason", MsgAlreadyRecording)
		return Errorf(MsgAlreadyRecording)
	}
	e.buffer = fresh
	e.state = State{Recording: true, Path: path}
	format := e.format
	e.mutex.Unlock()

	slog.Info("Recording started", "path", path, "format", format.String())
	return Ok()
}

func (e *Engine) stop() Response {
	e.mutex.Lock()
	if !e.state.Recording {
		e.mutex.Unlock()
		slog.Warn("Stop refused", "reason", MsgNotRecording)
		return Errorf(MsgNotRecording)
	}
	buf := e.buffer
	path := e.state.Path
	format := e.format
	e.buffer = nil
	e.state = State{}
	e.mutex.Unlock()

	if dropped := buf.Dropped(); dropped > 0 {
		slog.Warn("Recording hit the length limit", "path", path, "dropped_samples", dropped)
	}
	slog.Info("Recording stopped", "path", path, "samples", buf.Len())

	// The transition has committed; a failed write is reported but not rolled back
	if e.writer != nil {
		if err := e.writer.Write(buf, format, path); err != nil {
			slog.Error("Failed to save recording", "path", path, "error", err)
		}
	}
	return Ok()
}

// State returns a snapshot of the capture state
func (e *Engine) State() State {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.state
}

// Format returns the negotiated format, if any
func (e *Engine) Format() (audio.Format, bool) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.format, e.hasFormat
}

// OnFormatNegotiated records the stream format. A renegotiation during a
// recording is ignored so the recording keeps a single format.
func (e *Engine) OnFormatNegotiated(format audio.Format) {
	if !format.Valid() {
		return
	}

	e.mutex.Lock()
	if e.state.Recording && e.hasFormat && format != e.format {
		current := e.format
		e.mutex.Unlock()
		slog.Warn("Ignoring format renegotiation while recording", "current", current.String(), "offered", format.String())
		return
	}
	e.format = format
	e.hasFormat = true
	e.mutex.Unlock()

	slog.Info("Capture format negotiated", "format", format.String())
}

// OnSamples appends chunk to the recording buffer while Recording and discards it otherwise
func (e *Engine) OnSamples(chunk []float32) {
	e.mutex.Lock()
	if e.state.Recording && e.buffer != nil {
		e.buffer.Append(chunk)
	}
	e.mutex.Unlock()
}
