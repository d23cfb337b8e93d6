// internal/safety/gate.go
package safety

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// basePatterns is the built-in deny-list. Matching is case-insensitive
// substring match: it can over-block (a matched pattern appearing as an
// argument) and under-block (the same operation spelled differently). This
// is defense-in-depth, not a security boundary.
var basePatterns = []string{
	// File system destruction
	"rm -rf /",
	"rm -rf /etc",
	"rm -rf /var",
	"rm -rf /usr",
	"rm -rf /boot",
	"rm -rf /home",

	// Disk operations
	"dd if=/dev/",
	"mkfs",
	"fdisk",
	"parted",

	// Critical service operations
	"systemctl stop sshd",
	"systemctl disable sshd",
	"systemctl stop network",
	"systemctl stop firewalld",

	// Network
	"iptables -F",
	"iptables --flush",
	"ip link set down",
	"ifconfig down",

	// User management
	"userdel -r root",
	"passwd -d root",

	// Process management
	"killall -9",
	"kill -9 1",
}

// Gate classifies command strings as outright forbidden, independent of any
// approval already granted. It is stateless after construction.
type Gate struct {
	patterns []string
}

// NewGate returns a gate using the built-in deny-list.
func NewGate() *Gate {
	return &Gate{patterns: basePatterns}
}

// denyListFile is the shape of the optional extra-patterns YAML file.
type denyListFile struct {
	Patterns []string `yaml:"patterns"`
}

// NewGateFromFile returns a gate with the built-in deny-list extended by
// patterns loaded from a YAML file.
func NewGateFromFile(path string) (*Gate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read deny-list file: %w", err)
	}
	var extra denyListFile
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse deny-list file: %w", err)
	}

	patterns := make([]string, 0, len(basePatterns)+len(extra.Patterns))
	patterns = append(patterns, basePatterns...)
	for _, p := range extra.Patterns {
		if strings.TrimSpace(p) != "" {
			patterns = append(patterns, p)
		}
	}
	return &Gate{patterns: patterns}, nil
}

// IsDangerous reports whether the command matches the deny-list, and which
// pattern matched. Pure function: no I/O, deterministic.
func (g *Gate) IsDangerous(command string) (bool, string) {
	lowered := strings.ToLower(command)
	for _, pattern := range g.patterns {
		if strings.Contains(lowered, strings.ToLower(pattern)) {
			return true, pattern
		}
	}
	return false, ""
}
