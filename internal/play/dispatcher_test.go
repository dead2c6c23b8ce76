package play

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/soundboard/internal/audio"
	"github.com/audiolibrelab/soundboard/internal/config"
	"github.com/audiolibrelab/soundboard/internal/wavfile"
)

type invocation struct {
	target string
	path   string
	volume float64
	exists bool
}

type fakeBackend struct {
	fs      afero.Fs
	fail    map[string]error
	barrier *sync.WaitGroup

	mutex sync.Mutex
	calls []invocation
}

func (b *fakeBackend) Invoke(ctx context.Context, target, path string, volume float64) error {
	exists, _ := afero.Exists(b.fs, path)
	b.mutex.Lock()
	b.calls = append(b.calls, invocation{target: target, path: path, volume: volume, exists: exists})
	b.mutex.Unlock()

	if b.barrier != nil {
		// Every invocation must be running at the same time to get past here
		b.barrier.Done()
		waitCh := make(chan struct{})
		go func() { b.barrier.Wait(); close(waitCh) }()
		select {
		case <-waitCh:
		case <-time.After(2 * time.Second):
			return errors.New("invocations were not concurrent")
		}
	}
	return b.fail[target]
}

func newTestDispatcher(t *testing.T, backend *fakeBackend) *Dispatcher {
	t.Helper()
	fs := afero.NewMemMapFs()
	backend.fs = fs

	buf := audio.NewBuffer(0, 0)
	buf.Append(make([]float32, 960))
	require.NoError(t, wavfile.NewWriter(fs).Write(buf, audio.Format{SampleRate: 48000, Channels: 2}, "/rec/recording_A.wav"))

	return NewDispatcher(backend, fs, config.PlaybackConfig{MixerTarget: "MyMixer", TempDir: "/tmp/pitch"})
}

func TestPlayDefaultSink(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	err := d.Play(context.Background(), Request{Path: "/rec/recording_A.wav", Sink: SinkDefault, Volume: 0.8})
	require.NoError(t, err)

	require.Len(t, backend.calls, 1)
	assert.Equal(t, invocation{target: "", path: "/rec/recording_A.wav", volume: 0.8, exists: true}, backend.calls[0])
}

func TestPlayMixerSink(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	require.NoError(t, d.Play(context.Background(), Request{Path: "/rec/recording_A.wav", Sink: SinkMixer, Volume: 1}))

	require.Len(t, backend.calls, 1)
	assert.Equal(t, "MyMixer", backend.calls[0].target)
}

func TestPlayBothSinksConcurrentPartialFailure(t *testing.T) {
	barrier := &sync.WaitGroup{}
	barrier.Add(2)
	backend := &fakeBackend{
		barrier: barrier,
		fail:    map[string]error{"MyMixer": errors.New("exit status 1")},
	}
	d := newTestDispatcher(t, backend)

	err := d.Play(context.Background(), Request{Path: "/rec/recording_A.wav", Sink: SinkBoth, Volume: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink MyMixer")
	assert.NotContains(t, err.Error(), "not concurrent")

	require.Len(t, backend.calls, 2)
	targets := []string{backend.calls[0].target, backend.calls[1].target}
	assert.ElementsMatch(t, []string{"", "MyMixer"}, targets)
}

func TestPlayPitchedUsesTempCopyAndCleansUp(t *testing.T) {
	backend := &fakeBackend{fail: map[string]error{"": errors.New("player crashed")}}
	d := newTestDispatcher(t, backend)

	err := d.Play(context.Background(), Request{Path: "/rec/recording_A.wav", Sink: SinkDefault, Volume: 1, Semitones: 2})
	require.Error(t, err)

	require.Len(t, backend.calls, 1)
	call := backend.calls[0]
	assert.True(t, strings.HasPrefix(call.path, "/tmp/pitch/pitched_sample_"))
	assert.True(t, call.exists, "temp copy exists while playing")

	exists, _ := afero.Exists(d.fs, call.path)
	assert.False(t, exists, "temp copy removed even though playback failed")
}

func TestPlaySmallPitchPlaysOriginal(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	require.NoError(t, d.Play(context.Background(), Request{Path: "/rec/recording_A.wav", Volume: 1, Semitones: 0.005}))
	assert.Equal(t, "/rec/recording_A.wav", backend.calls[0].path)
}

func TestPlayPitchFailureFallsBackToOriginal(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)
	require.NoError(t, afero.WriteFile(d.fs, "/rec/broken.wav", []byte("garbage"), 0644))

	require.NoError(t, d.Play(context.Background(), Request{Path: "/rec/broken.wav", Volume: 1, Semitones: 3}))
	require.Len(t, backend.calls, 1)
	assert.Equal(t, "/rec/broken.wav", backend.calls[0].path)
}

func TestDispatchAndWait(t *testing.T) {
	backend := &fakeBackend{}
	d := newTestDispatcher(t, backend)

	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), Request{Path: "/rec/recording_A.wav", Sink: SinkBoth, Volume: 1, Semitones: 1})
	}
	d.Wait()

	assert.Len(t, backend.calls, 6)
	entries, _ := afero.ReadDir(d.fs, "/tmp/pitch")
	assert.Empty(t, entries, "every pitched copy is cleaned up")
}

func TestSinkCycleAndTargets(t *testing.T) {
	assert.Equal(t, SinkMixer, SinkDefault.Next())
	assert.Equal(t, SinkBoth, SinkMixer.Next())
	assert.Equal(t, SinkDefault, SinkBoth.Next())

	assert.Equal(t, []string{""}, SinkDefault.Targets("M"))
	assert.Equal(t, []string{"M"}, SinkMixer.Targets("M"))
	assert.Equal(t, []string{"", "M"}, SinkBoth.Targets("M"))

	s, err := ParseSink("BOTH")
	require.NoError(t, err)
	assert.Equal(t, SinkBoth, s)
	_, err = ParseSink("speakers")
	assert.Error(t, err)
}

func TestPlayerArgs(t *testing.T) {
	p := NewPlayer("")

	assert.Equal(t, []string{"--volume", "0.75", "/a.wav"}, p.args("", "/a.wav", 0.75))
	assert.Equal(t, []string{"--volume", "1", "--target", "MyMixer", "/a.wav"}, p.args("MyMixer", "/a.wav", 1))
}

func TestPlayerMissingBinary(t *testing.T) {
	p := NewPlayer("soundboard-no-such-player")

	assert.Error(t, p.Available())
	assert.Error(t, p.Invoke(context.Background(), "", "/a.wav", 1))
}
