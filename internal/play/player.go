package play

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// Backend plays one file on one target and returns when playback ends
type Backend interface {
	Invoke(ctx context.Context, target, path string, volume float64) error
}

// Player runs an external player such as pw-play once per invocation
type Player struct {
	binary string
}

// NewPlayer creates a player for the given executable
func NewPlayer(binary string) *Player {
	if binary == "" {
		binary = "pw-play"
	}
	return &Player{binary: binary}
}

// Available checks that the player executable can be found
func (p *Player) Available() error {
	if _, err := exec.LookPath(p.binary); err != nil {
		return fmt.Errorf("audio player %s not found: %w", p.binary, err)
	}
	return nil
}

// args builds: --volume V [--target T] path
func (p *Player) args(target, path string, volume float64) []string {
	args := []string{"--volume", strconv.FormatFloat(volume, 'f', -1, 64)}
	if target != "" {
		args = append(args, "--target", target)
	}
	return append(args, path)
}

// Invoke implements Backend
func (p *Player) Invoke(ctx context.Context, target, path string, volume float64) error {
	args := p.args(target, path, volume)
	slog.Debug("Starting player", "command", p.binary+" "+strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, p.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s failed: %w (output: %s)", p.binary, err, msg)
		}
		return fmt.Errorf("%s failed: %w", p.binary, err)
	}
	return nil
}
