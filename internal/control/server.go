package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/audiolibrelab/soundboard/internal/capture"
)

// maxLineBytes bounds one request line
const maxLineBytes = 64 * 1024

var errLineTooLong = errors.New("line too long")

// Server exposes a Handler on a unix socket, one JSON line per request and response
type Server struct {
	path    string
	handler Handler

	mutex    sync.Mutex
	listener net.Listener
	conns    map[string]net.Conn
	wg       sync.WaitGroup
}

// NewServer creates a server for the socket at path
func NewServer(path string, handler Handler) *Server {
	return &Server{
		path:    path,
		handler: handler,
		conns:   make(map[string]net.Conn),
	}
}

// Path returns the socket path
func (s *Server) Path() string { return s.path }

// Listen binds the socket, replacing a stale socket file left by a previous run
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := removeStaleSocket(s.path); err != nil {
		return err
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}

	s.mutex.Lock()
	s.listener = listener
	s.mutex.Unlock()

	slog.Info("Command socket listening", "path", s.path)
	return nil
}

func removeStaleSocket(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	// A live server answers the dial; refuse to steal its socket
	if conn, err := net.Dial("unix", path); err == nil {
		conn.Close()
		return fmt.Errorf("socket %s is in use by another process", path)
	}

	slog.Debug("Removing stale socket", "path", path)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	return nil
}

// Serve accepts connections until ctx is cancelled. Listen is called if needed.
func (s *Server) Serve(ctx context.Context) error {
	s.mutex.Lock()
	listener := s.listener
	s.mutex.Unlock()
	if listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
		s.mutex.Lock()
		listener = s.listener
		s.mutex.Unlock()
	}

	go func() {
		<-ctx.Done()
		slog.Debug("Command socket shutting down", "path", s.path)
		listener.Close()
		s.closeConns()
	}()

	defer func() {
		s.wg.Wait()
		os.Remove(s.path)
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Warn("Command socket accept error", "error", err)
			continue
		}

		// Registered before the handler starts so closeConns cannot miss it
		connID := uuid.NewString()
		s.mutex.Lock()
		if ctx.Err() != nil {
			s.mutex.Unlock()
			conn.Close()
			return nil
		}
		s.conns[connID] = conn
		s.mutex.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(connID, conn)
		}()
	}
}

func (s *Server) closeConns() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
}

// handleConnection answers each request line in order until the peer disconnects
func (s *Server) handleConnection(connID string, conn net.Conn) {
	defer conn.Close()
	defer func() {
		s.mutex.Lock()
		delete(s.conns, connID)
		s.mutex.Unlock()
	}()

	slog.Debug("Command connection opened", "conn", connID)

	reader := bufio.NewReader(conn)
	writer := bufio.NewWriter(conn)

	for {
		raw, err := readLine(reader)
		var resp capture.Response
		switch {
		case errors.Is(err, errLineTooLong):
			slog.Warn("Invalid command", "conn", connID, "error", err)
			resp = capture.Errorf("Invalid command: %v", err)
		case err != nil:
			if !errors.Is(err, io.EOF) {
				slog.Debug("Command connection read failed", "conn", connID, "error", err)
			}
			slog.Debug("Command connection closed", "conn", connID)
			return
		default:
			line := string(raw)
			if line == "" {
				continue
			}
			cmd, err := ParseCommand(line)
			if err != nil {
				slog.Warn("Invalid command", "conn", connID, "line", line, "error", err)
				resp = capture.Errorf("Invalid command: %v", err)
			} else {
				resp = s.handler.Handle(cmd)
				slog.Debug("Command handled", "conn", connID, "command", cmd.String(), "response", resp.String())
			}
		}

		out, err := encodeLine(resp)
		if err != nil {
			slog.Error("Failed to encode response", "conn", connID, "error", err)
			return
		}
		if _, err := writer.Write(out); err != nil {
			slog.Debug("Command connection write failed", "conn", connID, "error", err)
			return
		}
		if err := writer.Flush(); err != nil {
			slog.Debug("Command connection write failed", "conn", connID, "error", err)
			return
		}
	}
}

// readLine returns the next line without its line ending. A line longer than
// maxLineBytes is consumed up to its newline and reported as errLineTooLong.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	tooLong := false
	for {
		fragment, isPrefix, err := r.ReadLine()
		if err != nil {
			return nil, err
		}
		if !tooLong {
			if len(line)+len(fragment) > maxLineBytes {
				tooLong = true
				line = nil
			} else {
				line = append(line, fragment...)
			}
		}
		if !isPrefix {
			if tooLong {
				return nil, errLineTooLong
			}
			return line, nil
		}
	}
}
