package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/audiolibrelab/soundboard/internal/capture"
	"github.com/audiolibrelab/soundboard/internal/service"
	"github.com/audiolibrelab/soundboard/internal/storage"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP remote for the capture engine
type Server struct {
	service service.Service
	listen  string
	mux     *http.ServeMux
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Success   bool   `json:"success"`
	State     string `json:"state"`
	Recording bool   `json:"recording"`
	LastError string `json:"last_error,omitempty"`
}

// KeysResponse lists the key slots
type KeysResponse struct {
	Keys      []service.KeyInfo `json:"keys"`
	Directory string            `json:"directory"`
}

// StartRequest selects the destination by key or by path
type StartRequest struct {
	Key  *int   `json:"key,omitempty"`
	Path string `json:"path,omitempty"`
}

// GenericResponse represents a generic API response
type GenericResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// New creates a new web server instance listening on listen (host:port)
func New(svc service.Service, listen string) *Server {
	s := &Server{
		service: svc,
		listen:  listen,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/start", s.handleStart)
	s.mux.HandleFunc("/api/stop", s.handleStop)
	s.mux.HandleFunc("/api/keys", s.handleKeys)
	s.mux.HandleFunc("/api/keys/stream/", s.handleKeyStream)
	return s
}

// Handler returns the routes, for embedding and tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Serve runs the web server until ctx is cancelled
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}

	srv := &http.Server{Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}

	_, port, _ := net.SplitHostPort(ln.Addr().String())
	slog.Info("Starting soundboard web remote",
		"address", ln.Addr().String(),
		"local_url", fmt.Sprintf("http://%s:%s", getLocalIP(), port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Web remote shutdown failed", "error", err)
		}
	}()

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("web remote failed: %w", err)
	}
	return nil
}

// handleIndex serves a short description of the API
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(getDefaultHTML()))
}

func getDefaultHTML() string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Soundboard</title>
</head>
<body>
    <h1>Soundboard</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>GET /api/status - Capture engine state</li>
        <li>POST /api/start - Start recording ({"key": 0} or {"path": "..."})</li>
        <li>POST /api/stop - Stop recording</li>
        <li>GET /api/keys - List key slots</li>
        <li>GET /api/keys/stream/{letter} - Stream a recording</li>
    </ul>
</body>
</html>`
}

// handleStatus returns the engine state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	resp, err := s.service.Status(r.Context())
	if err != nil {
		s.sendErrorResponse(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Capture engine unreachable: %v", err), "operation", "status")
		return
	}

	response := StatusResponse{
		Success:   true,
		State:     resp.Message,
		Recording: strings.HasPrefix(resp.Message, "Recording"),
		LastError: s.service.GetLastError(),
	}
	s.sendJSON(w, http.StatusOK, response)
}

// handleStart starts recording to a key slot or an explicit path
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest,
			fmt.Sprintf("Invalid request body: %v", err), "operation", "start")
		return
	}
	if (req.Key == nil) == (req.Path == "") {
		s.sendErrorResponse(w, http.StatusBadRequest, "Exactly one of key or path is required", "operation", "start")
		return
	}

	var (
		resp capture.Response
		err  error
	)
	if req.Key != nil {
		slog.Debug("Start request received", "key", *req.Key)
		resp, err = s.service.StartRecording(r.Context(), *req.Key)
	} else {
		slog.Debug("Start request received", "path", req.Path)
		resp, err = s.service.StartRecordingPath(r.Context(), req.Path)
	}

	if errors.Is(err, storage.ErrInvalidKey) {
		s.sendErrorResponse(w, http.StatusBadRequest, err.Error(), "operation", "start")
		return
	}
	s.sendCommandResult(w, resp, err, "Recording started", "start")
}

// handleStop stops the current recording
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) {
		return
	}

	resp, err := s.service.StopRecording(r.Context())
	s.sendCommandResult(w, resp, err, "Recording stopped", "stop")
}

// handleKeys lists every key slot
func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodGet) {
		return
	}

	response := KeysResponse{
		Keys:      s.service.ListKeys(),
		Directory: s.service.GetConfig().Storage.Directory,
	}
	s.sendJSON(w, http.StatusOK, response)
}

// handleKeyStream streams the recording of one key, addressed by letter
func (s *Server) handleKeyStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	letter := strings.ToUpper(strings.TrimPrefix(r.URL.Path, "/api/keys/stream/"))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'Z' {
		http.Error(w, "Invalid key", http.StatusBadRequest)
		return
	}
	key := int(letter[0] - 'A')

	file, info, err := s.service.OpenRecording(key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidKey):
			http.Error(w, "Invalid key", http.StatusBadRequest)
		case errors.Is(err, fs.ErrNotExist):
			http.Error(w, "Recording not found", http.StatusNotFound)
		default:
			http.Error(w, "Error accessing recording", http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Accept-Ranges", "bytes")
	http.ServeContent(w, r, "recording_"+info.Letter+".wav", info.ModTime, file)
}

// sendCommandResult maps a command outcome to HTTP: refusals are conflicts,
// transport failures mean the engine is unavailable.
func (s *Server) sendCommandResult(w http.ResponseWriter, resp capture.Response, err error, message, operation string) {
	switch {
	case err != nil:
		s.sendErrorResponse(w, http.StatusServiceUnavailable,
			fmt.Sprintf("Capture engine unreachable: %v", err), "operation", operation)
	case resp.IsError():
		s.sendErrorResponse(w, http.StatusConflict, resp.Message, "operation", operation)
	default:
		slog.Info("Remote command completed", "operation", operation)
		s.sendJSON(w, http.StatusOK, GenericResponse{Success: true, Message: message})
	}
}

func (s *Server) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	s.sendJSON(w, http.StatusMethodNotAllowed, GenericResponse{Success: false, Error: "Method not allowed"})
	return false
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}

// sendErrorResponse logs and sends a JSON error
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	s.sendJSON(w, statusCode, GenericResponse{Success: false, Error: errorMsg})
}

func getLocalIP() string {
	// Connecting a UDP socket sends nothing but picks the outbound interface
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
