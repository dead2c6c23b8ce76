package capture

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CommandKind tags a Command
type CommandKind string

const (
	CommandStart  CommandKind = "Start"
	CommandStop   CommandKind = "Stop"
	CommandStatus CommandKind = "Status"
)

// Command is a request to the engine. Path is only meaningful for Start.
type Command struct {
	Kind CommandKind
	Path string
}

func Start(path string) Command { return Command{Kind: CommandStart, Path: path} }
func Stop() Command             { return Command{Kind: CommandStop} }
func Status() Command           { return Command{Kind: CommandStatus} }

func (c Command) String() string {
	if c.Kind == CommandStart {
		return fmt.Sprintf("Start(%s)", c.Path)
	}
	return string(c.Kind)
}

// ResponseKind tags a Response
type ResponseKind string

const (
	ResponseOk     ResponseKind = "Ok"
	ResponseStatus ResponseKind = "Status"
	ResponseError  ResponseKind = "Error"
)

// Response answers exactly one Command. Message holds the status text or the error.
type Response struct {
	Kind    ResponseKind
	Message string
}

func Ok() Response                  { return Response{Kind: ResponseOk} }
func StatusOf(text string) Response { return Response{Kind: ResponseStatus, Message: text} }
func Errorf(format string, args ...any) Response {
	return Response{Kind: ResponseError, Message: fmt.Sprintf(format, args...)}
}

// IsOk reports whether the command was accepted
func (r Response) IsOk() bool { return r.Kind == ResponseOk }

// IsError reports a guard refusal or a protocol error
func (r Response) IsError() bool { return r.Kind == ResponseError }

func (r Response) String() string {
	if r.Kind == ResponseOk {
		return "Ok"
	}
	return fmt.Sprintf("%s(%s)", r.Kind, r.Message)
}

// Commands and responses use an externally tagged encoding: unit variants are
// bare strings ("Stop"), variants with a payload are single-key objects
// ({"Start":"/path"}).

func (c Command) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case CommandStart:
		return json.Marshal(map[string]string{string(CommandStart): c.Path})
	case CommandStop, CommandStatus:
		return json.Marshal(string(c.Kind))
	}
	return nil, fmt.Errorf("unknown command kind %q", c.Kind)
}

func (c *Command) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("invalid command: %w", err)
	}

	switch CommandKind(tag) {
	case CommandStart:
		if payload == nil {
			return fmt.Errorf("invalid command: Start requires a path")
		}
		var path string
		if err := json.Unmarshal(payload, &path); err != nil {
			return fmt.Errorf("invalid command: Start path: %w", err)
		}
		*c = Start(path)
	case CommandStop, CommandStatus:
		if payload != nil {
			return fmt.Errorf("invalid command: %s takes no payload", tag)
		}
		*c = Command{Kind: CommandKind(tag)}
	default:
		return fmt.Errorf("invalid command: unknown variant %q", tag)
	}
	return nil
}

func (r Response) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case ResponseOk:
		return json.Marshal(string(ResponseOk))
	case ResponseStatus, ResponseError:
		return json.Marshal(map[string]string{string(r.Kind): r.Message})
	}
	return nil, fmt.Errorf("unknown response kind %q", r.Kind)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	tag, payload, err := decodeTagged(data)
	if err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	switch ResponseKind(tag) {
	case ResponseOk:
		*r = Ok()
	case ResponseStatus, ResponseError:
		var msg string
		if payload != nil {
			if err := json.Unmarshal(payload, &msg); err != nil {
				return fmt.Errorf("invalid response: %s payload: %w", tag, err)
			}
		}
		*r = Response{Kind: ResponseKind(tag), Message: msg}
	default:
		return fmt.Errorf("invalid response: unknown variant %q", tag)
	}
	return nil
}

// decodeTagged splits an externally tagged value into its tag and raw payload.
// A bare string has a nil payload.
func decodeTagged(data []byte) (string, json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", nil, fmt.Errorf("empty message")
	}

	if data[0] == '"' {
		var tag string
		if err := json.Unmarshal(data, &tag); err != nil {
			return "", nil, err
		}
		return tag, nil, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", nil, err
	}
	if len(obj) != 1 {
		return "", nil, fmt.Errorf("expected exactly one variant, got %d", len(obj))
	}
	for tag, payload := range obj {
		return tag, payload, nil
	}
	return "", nil, fmt.Errorf("empty object")
}
