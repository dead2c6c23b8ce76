// Package control carries capture commands from controllers to the capture engine.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/audiolibrelab/soundboard/internal/capture"
)

// ErrUnreachable means the capture engine could not be contacted. No command was applied.
var ErrUnreachable = errors.New("capture engine unreachable")

// Sender delivers one command and returns its response. Transport failures are
// returned as errors, guard refusals as Error responses.
type Sender interface {
	Send(ctx context.Context, cmd capture.Command) (capture.Response, error)
}

// Handler applies commands. capture.Engine implements it.
type Handler interface {
	Handle(cmd capture.Command) capture.Response
}

// ParseCommand decodes one request line. Both the JSON encoding and the plain
// text verbs START <path>, STOP and STATUS are accepted.
func ParseCommand(line string) (capture.Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return capture.Command{}, fmt.Errorf("empty request")
	}

	if line[0] == '"' || line[0] == '{' {
		var cmd capture.Command
		if err := json.Unmarshal([]byte(line), &cmd); err != nil {
			return capture.Command{}, err
		}
		return cmd, nil
	}

	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToUpper(verb) {
	case "START":
		if arg == "" {
			return capture.Command{}, fmt.Errorf("START requires a path")
		}
		return capture.Start(arg), nil
	case "STOP":
		return capture.Stop(), nil
	case "STATUS":
		return capture.Status(), nil
	}
	return capture.Command{}, fmt.Errorf("unknown request %q", verb)
}

// encodeLine renders v as one newline-terminated JSON line
func encodeLine(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
