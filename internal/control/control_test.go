package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/soundboard/internal/audio"
	"github.com/audiolibrelab/soundboard/internal/capture"
)

func newEngine() *capture.Engine {
	e := capture.NewEngine(nil)
	e.OnFormatNegotiated(audio.Format{SampleRate: 48000, Channels: 2})
	return e
}

// socketPath keeps unix socket paths short; t.TempDir can exceed the sun_path limit
func socketPath(t *testing.T) string {
	dir, err := os.MkdirTemp("", "sb")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

func startServer(t *testing.T, handler Handler) (*Server, context.CancelFunc) {
	t.Helper()
	srv := NewServer(socketPath(t), handler)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down")
		}
	})
	return srv, cancel
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want capture.Command
	}{
		{`{"Start":"/rec/a.wav"}`, capture.Start("/rec/a.wav")},
		{`"Stop"`, capture.Stop()},
		{`"Status"`, capture.Status()},
		{"START /rec/with space.wav", capture.Start("/rec/with space.wav")},
		{"stop", capture.Stop()},
		{"  STATUS  ", capture.Status()},
	}

	for _, tt := range tests {
		got, err := ParseCommand(tt.line)
		require.NoError(t, err, tt.line)
		assert.Equal(t, tt.want, got, tt.line)
	}

	for _, bad := range []string{"", "START", "LAUNCH now", `{"Start":`, `"Nope"`} {
		_, err := ParseCommand(bad)
		assert.Error(t, err, "line %q", bad)
	}
}

func TestLocalSend(t *testing.T) {
	local := NewLocal(newEngine())
	ctx, cancel := context.WithCancel(context.Background())
	go local.Run(ctx)

	resp, err := local.Send(ctx, capture.Start("/a.wav"))
	require.NoError(t, err)
	assert.Equal(t, capture.Ok(), resp)

	resp, err = local.Send(ctx, capture.Start("/b.wav"))
	require.NoError(t, err)
	assert.Equal(t, capture.Errorf(capture.MsgAlreadyRecording), resp)

	resp, err = local.Send(ctx, capture.Status())
	require.NoError(t, err)
	assert.Equal(t, capture.StatusOf("Recording(/a.wav)"), resp)

	cancel()
	time.Sleep(10 * time.Millisecond)

	_, err = local.Send(context.Background(), capture.Stop())
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestLocalSendCancelledContext(t *testing.T) {
	local := NewLocal(newEngine()) // never served

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := local.Send(ctx, capture.Status())
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestClientServerRoundTrip(t *testing.T) {
	srv, _ := startServer(t, newEngine())
	client := NewClient(srv.Path(), time.Second)
	ctx := context.Background()

	resp, err := client.Send(ctx, capture.Status())
	require.NoError(t, err)
	assert.Equal(t, capture.StatusOf("Listening"), resp)

	resp, err = client.Send(ctx, capture.Start("/rec/a.wav"))
	require.NoError(t, err)
	assert.Equal(t, capture.Ok(), resp)

	resp, err = client.Send(ctx, capture.Start("/rec/b.wav"))
	require.NoError(t, err)
	assert.Equal(t, capture.Errorf(capture.MsgAlreadyRecording), resp)

	resp, err = client.Send(ctx, capture.Stop())
	require.NoError(t, err)
	assert.Equal(t, capture.Ok(), resp)

	resp, err = client.Send(ctx, capture.Stop())
	require.NoError(t, err)
	assert.Equal(t, capture.Errorf(capture.MsgNotRecording), resp)
}

func TestServerOrderedResponsesOnOneConnection(t *testing.T) {
	srv, _ := startServer(t, newEngine())

	conn, err := net.Dial("unix", srv.Path())
	require.NoError(t, err)
	defer conn.Close()

	// Pipelined requests, including garbage and a legacy verb
	_, err = fmt.Fprint(conn, "{\"Start\":\"/a.wav\"}\nnot json at all\nSTATUS\n\"Stop\"\n\"Stop\"\n")
	require.NoError(t, err)

	expected := []string{
		`"Ok"`,
		`{"Error":`,
		`{"Status":"Recording(/a.wav)"}`,
		`"Ok"`,
		`{"Error":"Not recording"}`,
	}

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for i, want := range expected {
		line, err := reader.ReadString('\n')
		require.NoError(t, err, "response %d", i)
		assert.Contains(t, line, want, "response %d", i)
	}
}

func TestClientUnreachable(t *testing.T) {
	client := NewClient(filepath.Join(os.TempDir(), "soundboard-missing-test.sock"), 200*time.Millisecond)

	_, err := client.Send(context.Background(), capture.Status())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))
}

func TestServerRemovesStaleSocket(t *testing.T) {
	path := socketPath(t)

	// A socket file with no listener behind it
	l, err := net.Listen("unix", path)
	require.NoError(t, err)
	l.(*net.UnixListener).SetUnlinkOnClose(false)
	l.Close()
	_, err = os.Stat(path)
	require.NoError(t, err, "stale socket file should remain")

	srv := NewServer(path, newEngine())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := NewClient(path, time.Second).Send(context.Background(), capture.Status())
	require.NoError(t, err)
	assert.Equal(t, capture.StatusOf("Listening"), resp)

	// A second server must not steal a live socket
	assert.Error(t, NewServer(path, newEngine()).Listen())

	cancel()
	require.NoError(t, <-done)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "socket removed on shutdown")
}

func TestConcurrentClientsExactlyOneStart(t *testing.T) {
	srv, _ := startServer(t, newEngine())

	const senders = 8
	var wg sync.WaitGroup
	var mutex sync.Mutex
	oks := 0
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := NewClient(srv.Path(), 2*time.Second).Send(context.Background(), capture.Start(fmt.Sprintf("/%d.wav", i)))
			if !assert.NoError(t, err) {
				return
			}
			if resp.IsOk() {
				mutex.Lock()
				oks++
				mutex.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
}

func TestServerAnswersOverlongLineAndKeepsServing(t *testing.T) {
	srv, _ := startServer(t, newEngine())

	conn, err := net.Dial("unix", srv.Path())
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	long := `{"Start":"` + strings.Repeat("a", 70*1024) + `"}`
	_, err = fmt.Fprintf(conn, "%s\n\"Status\"\n", long)
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"Error":"Invalid command: line too long"}`+"\n", line)

	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, `{"Status":"Listening"}`+"\n", line)
}

func TestReadLine(t *testing.T) {
	long := strings.Repeat("x", maxLineBytes+1)
	r := bufio.NewReaderSize(strings.NewReader("a\r\n"+long+"\nb\n"+strings.Repeat("y", maxLineBytes)+"\n"), 16)

	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "a", string(line))

	_, err = readLine(r)
	assert.ErrorIs(t, err, errLineTooLong)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "b", string(line))

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Len(t, line, maxLineBytes)

	_, err = readLine(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestServeClosesIdleConnectionsOnCancel(t *testing.T) {
	srv := NewServer(socketPath(t), newEngine())
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	// Idle peers that never hang up on their own
	for i := 0; i < 4; i++ {
		conn, err := net.Dial("unix", srv.Path())
		require.NoError(t, err)
		defer conn.Close()
	}
	resp, err := NewClient(srv.Path(), time.Second).Send(context.Background(), capture.Status())
	require.NoError(t, err)
	assert.Equal(t, capture.StatusOf("Listening"), resp)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve blocked on idle connections after cancel")
	}
}
