package capture

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/soundboard/internal/audio"
	"github.com/audiolibrelab/soundboard/internal/wavfile"
)

var stereo48k = audio.Format{SampleRate: 48000, Channels: 2}

type savedRecording struct {
	samples []float32
	format  audio.Format
	path    string
}

type fakeWriter struct {
	mutex sync.Mutex
	saved []savedRecording
	err   error
}

func (w *fakeWriter) Write(buf *audio.Buffer, format audio.Format, path string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if buf.Len() == 0 {
		return nil
	}
	w.saved = append(w.saved, savedRecording{samples: buf.Samples(), format: format, path: path})
	return w.err
}

func deliver(e *Engine, chunks, size int) {
	chunk := make([]float32, size)
	for i := 0; i < chunks; i++ {
		for j := range chunk {
			chunk[j] = float32(i*size+j) / 10000
		}
		e.OnSamples(chunk)
	}
}

func TestStartRequiresFormat(t *testing.T) {
	e := NewEngine(&fakeWriter{})

	resp := e.Handle(Start("/rec/a.wav"))
	assert.Equal(t, Errorf(MsgFormatNotKnown), resp)
	assert.Equal(t, "Listening", e.State().String())
}

func TestStartStopLifecycle(t *testing.T) {
	w := &fakeWriter{}
	e := NewEngine(w)
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/rec/a.wav")))
	assert.Equal(t, StatusOf("Recording(/rec/a.wav)"), e.Handle(Status()))

	deliver(e, 10, 480)

	require.Equal(t, Ok(), e.Handle(Stop()))
	assert.Equal(t, StatusOf("Listening"), e.Handle(Status()))

	require.Len(t, w.saved, 1)
	assert.Equal(t, "/rec/a.wav", w.saved[0].path)
	assert.Equal(t, stereo48k, w.saved[0].format)
	assert.Len(t, w.saved[0].samples, 4800)
}

func TestSecondStartRefused(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := NewEngine(wavfile.NewWriter(fs))
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/rec/a.wav")))
	assert.Equal(t, Errorf(MsgAlreadyRecording), e.Handle(Start("/rec/b.wav")))
	assert.Equal(t, State{Recording: true, Path: "/rec/a.wav"}, e.State())

	deliver(e, 1, 96)
	require.Equal(t, Ok(), e.Handle(Stop()))

	exists, _ := afero.Exists(fs, "/rec/a.wav")
	assert.True(t, exists)
	exists, _ = afero.Exists(fs, "/rec/b.wav")
	assert.False(t, exists)
}

func TestStopWhileListeningRefused(t *testing.T) {
	e := NewEngine(&fakeWriter{})
	e.OnFormatNegotiated(stereo48k)

	assert.Equal(t, Errorf(MsgNotRecording), e.Handle(Stop()))
}

func TestStartStopWithoutSamplesWritesNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := NewEngine(wavfile.NewWriter(fs))
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/rec/a.wav")))
	require.Equal(t, Ok(), e.Handle(Stop()))

	exists, _ := afero.Exists(fs, "/rec/a.wav")
	assert.False(t, exists)
}

func TestRecordingRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	e := NewEngine(wavfile.NewWriter(fs))
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/rec/a.wav")))
	deliver(e, 10, 480)
	require.Equal(t, Ok(), e.Handle(Stop()))

	samples, format, err := wavfile.ReadFloat32(fs, "/rec/a.wav")
	require.NoError(t, err)
	assert.Equal(t, stereo48k, format)
	require.Len(t, samples, 4800)
	for i, s := range samples {
		require.Equal(t, float32(i)/10000, s, "sample %d", i)
	}
}

func TestSamplesOutsideRecordingDiscarded(t *testing.T) {
	w := &fakeWriter{}
	e := NewEngine(w)
	e.OnFormatNegotiated(stereo48k)

	deliver(e, 5, 100)
	require.Equal(t, Ok(), e.Handle(Start("/a.wav")))
	deliver(e, 2, 100)
	require.Equal(t, Ok(), e.Handle(Stop()))
	deliver(e, 5, 100)

	require.Len(t, w.saved, 1)
	assert.Len(t, w.saved[0].samples, 200)
}

func TestStartClearsPreviousBuffer(t *testing.T) {
	w := &fakeWriter{}
	e := NewEngine(w)
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/a.wav")))
	deliver(e, 3, 100)
	require.Equal(t, Ok(), e.Handle(Stop()))

	require.Equal(t, Ok(), e.Handle(Start("/b.wav")))
	deliver(e, 1, 100)
	require.Equal(t, Ok(), e.Handle(Stop()))

	require.Len(t, w.saved, 2)
	assert.Len(t, w.saved[0].samples, 300)
	assert.Len(t, w.saved[1].samples, 100)
}

func TestWriteFailureKeepsTransition(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}
	e := NewEngine(w)
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/a.wav")))
	deliver(e, 1, 10)
	assert.Equal(t, Ok(), e.Handle(Stop()))
	assert.Equal(t, "Listening", e.State().String())

	// The engine is usable again
	assert.Equal(t, Ok(), e.Handle(Start("/b.wav")))
}

func TestRenegotiationIgnoredWhileRecording(t *testing.T) {
	w := &fakeWriter{}
	e := NewEngine(w)
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/a.wav")))
	e.OnFormatNegotiated(audio.Format{SampleRate: 44100, Channels: 1})
	deliver(e, 1, 10)
	require.Equal(t, Ok(), e.Handle(Stop()))

	require.Len(t, w.saved, 1)
	assert.Equal(t, stereo48k, w.saved[0].format)

	// Accepted again once listening
	e.OnFormatNegotiated(audio.Format{SampleRate: 44100, Channels: 1})
	format, ok := e.Format()
	assert.True(t, ok)
	assert.Equal(t, uint32(44100), format.SampleRate)
}

func TestInvalidFormatIgnored(t *testing.T) {
	e := NewEngine(nil)
	e.OnFormatNegotiated(audio.Format{})

	_, ok := e.Format()
	assert.False(t, ok)
}

func TestMaxSamplesLimit(t *testing.T) {
	w := &fakeWriter{}
	e := NewEngine(w, WithMaxSamples(250), WithSegmentSize(64))
	e.OnFormatNegotiated(stereo48k)

	require.Equal(t, Ok(), e.Handle(Start("/a.wav")))
	deliver(e, 5, 100)
	require.Equal(t, Ok(), e.Handle(Stop()))

	require.Len(t, w.saved, 1)
	assert.Len(t, w.saved[0].samples, 250)
}

func TestFirstSamplesAfterStartDoNotAllocate(t *testing.T) {
	e := NewEngine(&fakeWriter{}, WithSegmentSize(4096))
	e.OnFormatNegotiated(stereo48k)
	require.Equal(t, Ok(), e.Handle(Start("/a.wav")))

	chunk := make([]float32, 256)
	allocs := testing.AllocsPerRun(10, func() {
		e.OnSamples(chunk)
	})
	assert.Zero(t, allocs)
}

func TestConcurrentStartsExactlyOneWins(t *testing.T) {
	e := NewEngine(&fakeWriter{})
	e.OnFormatNegotiated(stereo48k)

	const senders = 16
	results := make([]Response, senders)
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Handle(Start(fmt.Sprintf("/rec/%d.wav", i)))
		}(i)
	}

	// The audio thread keeps delivering while commands race
	stop := make(chan struct{})
	go func() {
		chunk := make([]float32, 64)
		for {
			select {
			case <-stop:
				return
			default:
				e.OnSamples(chunk)
			}
		}
	}()
	wg.Wait()
	close(stop)

	winners := 0
	for _, resp := range results {
		if resp.IsOk() {
			winners++
		} else {
			assert.Equal(t, Errorf(MsgAlreadyRecording), resp)
		}
	}
	assert.Equal(t, 1, winners)
	assert.True(t, e.State().Recording)
}

func TestStateNeverHasTwoDestinations(t *testing.T) {
	e := NewEngine(&fakeWriter{})
	e.OnFormatNegotiated(stereo48k)

	commands := []Command{
		Start("/a.wav"), Start("/b.wav"), Status(), Stop(), Stop(),
		Start("/c.wav"), Status(), Start("/a.wav"), Stop(), Status(),
	}

	var current string
	for _, cmd := range commands {
		resp := e.Handle(cmd)
		state := e.State()
		switch {
		case cmd.Kind == CommandStart && resp.IsOk():
			assert.Empty(t, current, "Start accepted while %s was recording", current)
			current = cmd.Path
		case cmd.Kind == CommandStop && resp.IsOk():
			current = ""
		}
		assert.Equal(t, current, state.Path)
		assert.Equal(t, current != "", state.Recording)
	}
}
