package audio

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// PipeWire queries the PipeWire graph through pw-link
type PipeWire struct{}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{}
}

// ListPorts returns all available ports via PipeWire
func (pw *PipeWire) ListPorts() ([]string, error) {
	return pw.list("-io")
}

// ListOutputPorts returns the node names owning at least one output port.
// These are the names pw-record accepts as a capture target.
func (pw *PipeWire) ListOutputPorts() ([]string, error) {
	ports, err := pw.list("-o")
	if err != nil {
		return nil, err
	}
	return nodeNames(ports), nil
}

func (pw *PipeWire) list(flag string) ([]string, error) {
	cmd := exec.Command("pw-link", flag)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(output)), nil
}

// ValidateTarget checks that a capture target exists exactly once in the graph
func (pw *PipeWire) ValidateTarget(target string) error {
	if target == "" {
		return nil
	}

	ports, err := pw.list("-o")
	if err != nil {
		return err
	}
	return validateTargetInList(target, ports)
}

// parsePortList extracts port names from pw-link output
func parsePortList(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// nodeNames returns the distinct node part of "node:port" names, in first-seen order
func nodeNames(ports []string) []string {
	seen := make(map[string]bool)
	var nodes []string
	for _, port := range ports {
		node, _, ok := strings.Cut(port, ":")
		if !ok || node == "" || seen[node] {
			continue
		}
		seen[node] = true
		nodes = append(nodes, node)
	}
	return nodes
}

// validateTargetInList reports a missing or ambiguous target among ports
func validateTargetInList(target string, ports []string) error {
	var instances []string
	for _, port := range ports {
		node, _, _ := strings.Cut(port, ":")
		if node == target {
			instances = append(instances, port)
		}
	}

	if len(instances) == 0 {
		return fmt.Errorf("capture target not found: %s", target)
	}

	duplicates := findPortDuplicatesInList(instances)
	if len(duplicates) > 0 {
		slog.Debug("Duplicate ports for capture target", "target", target, "ports", duplicates)
		return fmt.Errorf("duplicate sources detected for '%s': %v. Please close conflicting applications", target, duplicates)
	}
	return nil
}

// findPortDuplicatesInList returns the port names appearing more than once
func findPortDuplicatesInList(ports []string) []string {
	counts := make(map[string]int)
	var duplicates []string
	for _, port := range ports {
		counts[port]++
		if counts[port] == 2 {
			duplicates = append(duplicates, port)
		}
	}
	return duplicates
}
