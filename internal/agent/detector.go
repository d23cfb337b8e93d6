// internal/agent/detector.go
package agent

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/otium-ai/ops-agent-api-server/internal/engine"
	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// probedTools is the fixed set of utilities the detector reports on. Plan
// generation only branches on a handful of these, the rest are advisory.
var probedTools = []string{
	"curl", "wget", "git", "docker", "python3", "tar", "rsync", "jq",
}

// Detector probes a remote host through an established SSH connection and
// summarizes what kind of system it is. The summary only parameterizes
// plan generation; nothing else consults it.
type Detector struct {
	transport    engine.Transport
	probeTimeout time.Duration
}

func NewDetector(transport engine.Transport, probeTimeout time.Duration) *Detector {
	if probeTimeout <= 0 {
		probeTimeout = 15 * time.Second
	}
	return &Detector{transport: transport, probeTimeout: probeTimeout}
}

// Detect builds a SystemContext for the host behind connID. Individual
// probe failures degrade to empty fields rather than failing detection;
// only a dead connection is an error.
func (d *Detector) Detect(connID string) (models.SystemContext, error) {
	var sys models.SystemContext

	res, err := d.transport.Execute(connID, "cat /etc/os-release", d.probeTimeout)
	if err != nil {
		return sys, fmt.Errorf("failed to probe os-release: %w", err)
	}
	if res.ExitCode == 0 {
		parseOSRelease(res.Stdout, &sys)
	}

	sys.PackageManager = d.firstAvailable(connID,
		"apt-get", "dnf", "yum", "zypper", "pacman", "apk")
	sys.ServiceManager = d.detectServiceManager(connID)
	sys.AvailableTools = d.detectTools(connID)

	log.Debug("detected remote system",
		"connection", connID, "os", sys.OSName, "family", sys.OSFamily,
		"packageManager", sys.PackageManager, "serviceManager", sys.ServiceManager)
	return sys, nil
}

func (d *Detector) firstAvailable(connID string, candidates ...string) string {
	for _, c := range candidates {
		res, err := d.transport.Execute(connID, "command -v "+c, d.probeTimeout)
		if err == nil && res.ExitCode == 0 {
			return c
		}
	}
	return ""
}

func (d *Detector) detectServiceManager(connID string) string {
	switch d.firstAvailable(connID, "systemctl", "service") {
	case "systemctl":
		return "systemd"
	case "service":
		return "sysvinit"
	default:
		return ""
	}
}

func (d *Detector) detectTools(connID string) []string {
	script := fmt.Sprintf(
		`for t in %s; do command -v "$t" >/dev/null 2>&1 && echo "$t"; done`,
		strings.Join(probedTools, " "))
	res, err := d.transport.Execute(connID, script, d.probeTimeout)
	if err != nil || res.ExitCode != 0 {
		return nil
	}
	var tools []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			tools = append(tools, t)
		}
	}
	return tools
}

func parseOSRelease(out string, sys *models.SystemContext) {
	fields := make(map[string]string)
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		fields[key] = strings.Trim(value, `"`)
	}

	sys.OSName = fields["NAME"]
	sys.OSVersion = fields["VERSION_ID"]
	sys.OSFamily = osFamily(fields["ID"], fields["ID_LIKE"])
}

func osFamily(id, idLike string) string {
	ids := id + " " + idLike
	switch {
	case containsAny(ids, "debian", "ubuntu"):
		return "debian"
	case containsAny(ids, "rhel", "fedora", "centos", "rocky", "almalinux"):
		return "rhel"
	case containsAny(ids, "suse", "opensuse"):
		return "suse"
	case containsAny(ids, "arch"):
		return "arch"
	case containsAny(ids, "alpine"):
		return "alpine"
	default:
		return id
	}
}

func containsAny(haystack string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
