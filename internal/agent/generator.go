// internal/agent/generator.go
package agent

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
	"github.com/otium-ai/ops-agent-api-server/internal/safety"
)

// ErrNoPlanGenerated is returned when a request matches no known pattern.
// The caller surfaces it as a client-side "rephrase your request" error.
var ErrNoPlanGenerated = errors.New("no plan could be generated for this request")

// Plan is generator output before it becomes a persisted command. The
// engine treats it as untrusted: risk labels are recomputed by the safety
// package, and every command still passes the deny-list before execution.
type Plan struct {
	Intent    string
	Action    string
	RiskLevel models.RiskLevel
	Steps     []models.Step
}

// PlanGenerator turns a natural-language request into a step plan for a
// concrete system. Implementations may be rule-based or model-backed.
type PlanGenerator interface {
	Generate(request string, sys models.SystemContext) (*Plan, error)
}

// RuleBasedGenerator matches requests against a fixed pattern table and
// emits plans parameterized by the detected package and service managers.
type RuleBasedGenerator struct{}

func NewRuleBasedGenerator() *RuleBasedGenerator { return &RuleBasedGenerator{} }

var (
	installRe = regexp.MustCompile(`(?i)\binstall\s+([a-z0-9][a-z0-9._+-]*)`)
	serviceRe = regexp.MustCompile(`(?i)\b(restart|start|stop|status of|check)\s+(?:the\s+)?([a-z0-9][a-z0-9._-]*)(?:\s+service)?`)
)

func (g *RuleBasedGenerator) Generate(request string, sys models.SystemContext) (*Plan, error) {
	lower := strings.ToLower(request)

	var plan *Plan
	switch {
	case containsAny(lower, "update", "upgrade") && containsAny(lower, "package", "system", "apt", "yum", "dnf", "everything"):
		plan = updatePlan(sys)
	case installRe.MatchString(request):
		plan = installPlan(installRe.FindStringSubmatch(request)[1], sys)
	case containsAny(lower, "disk", "storage", "space"):
		plan = oneStepPlan("check disk usage", "df -h", "Show disk usage for all mounted filesystems")
	case containsAny(lower, "memory", "ram"):
		plan = oneStepPlan("check memory usage", "free -h", "Show memory and swap usage")
	case containsAny(lower, "uptime", "load"):
		plan = oneStepPlan("check system load", "uptime", "Show uptime and load averages")
	case containsAny(lower, "process", "running", "top"):
		plan = oneStepPlan("list processes", "ps aux --sort=-%cpu | head -n 20", "List the top processes by CPU usage")
	case containsAny(lower, "network", "listening", "ports"):
		plan = oneStepPlan("inspect network", "ss -tlnp", "List listening TCP sockets and owning processes")
	case containsAny(lower, "kernel", "os version", "distro", "which linux"):
		plan = oneStepPlan("identify system", "uname -a && cat /etc/os-release", "Show kernel and distribution details")
	case containsAny(lower, "restart", "start", "stop", "service", "status"):
		if m := serviceRe.FindStringSubmatch(request); m != nil {
			plan = servicePlan(m[1], m[2], sys)
		}
	case containsAny(lower, "log", "journal"):
		plan = oneStepPlan("inspect logs", "journalctl -n 100 --no-pager", "Show the last 100 system log entries")
	}

	if plan == nil || len(plan.Steps) == 0 {
		return nil, ErrNoPlanGenerated
	}

	// Generator risk labels are advisory at best; recompute from the
	// actual command text.
	plan.RiskLevel = models.RiskLow
	for i := range plan.Steps {
		plan.Steps[i].Index = i
		plan.Steps[i].RiskLevel = safety.AssessRisk(plan.Steps[i].Command)
		plan.RiskLevel = safety.MaxRisk(plan.RiskLevel, plan.Steps[i].RiskLevel)
	}
	return plan, nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func oneStepPlan(action, command, explanation string) *Plan {
	return &Plan{
		Intent: action,
		Action: action,
		Steps: []models.Step{{
			Command:       command,
			Explanation:   explanation,
			EstimatedTime: "seconds",
		}},
	}
}

func updatePlan(sys models.SystemContext) *Plan {
	var steps []models.Step
	switch sys.PackageManager {
	case "apt-get":
		steps = []models.Step{
			{Command: "sudo apt-get update", Explanation: "Refresh the package index", EstimatedTime: "under a minute"},
			{Command: "sudo apt-get upgrade -y", Explanation: "Upgrade all installed packages", EstimatedTime: "several minutes"},
		}
	case "dnf", "yum":
		steps = []models.Step{
			{Command: fmt.Sprintf("sudo %s upgrade -y", sys.PackageManager), Explanation: "Upgrade all installed packages", EstimatedTime: "several minutes"},
		}
	case "zypper":
		steps = []models.Step{
			{Command: "sudo zypper refresh", Explanation: "Refresh repository metadata", EstimatedTime: "under a minute"},
			{Command: "sudo zypper update -y", Explanation: "Upgrade all installed packages", EstimatedTime: "several minutes"},
		}
	case "pacman":
		steps = []models.Step{
			{Command: "sudo pacman -Syu --noconfirm", Explanation: "Sync and upgrade all packages", EstimatedTime: "several minutes"},
		}
	case "apk":
		steps = []models.Step{
			{Command: "sudo apk update && sudo apk upgrade", Explanation: "Update the index and upgrade packages", EstimatedTime: "a few minutes"},
		}
	default:
		return nil
	}
	return &Plan{Intent: "update system packages", Action: "package upgrade", Steps: steps}
}

func installPlan(pkg string, sys models.SystemContext) *Plan {
	var cmd string
	switch sys.PackageManager {
	case "apt-get":
		cmd = fmt.Sprintf("sudo apt-get install -y %s", pkg)
	case "dnf", "yum":
		cmd = fmt.Sprintf("sudo %s install -y %s", sys.PackageManager, pkg)
	case "zypper":
		cmd = fmt.Sprintf("sudo zypper install -y %s", pkg)
	case "pacman":
		cmd = fmt.Sprintf("sudo pacman -S --noconfirm %s", pkg)
	case "apk":
		cmd = fmt.Sprintf("sudo apk add %s", pkg)
	default:
		return nil
	}
	return &Plan{
		Intent: fmt.Sprintf("install %s", pkg),
		Action: "package install",
		Steps: []models.Step{{
			Command:       cmd,
			Explanation:   fmt.Sprintf("Install the %s package", pkg),
			EstimatedTime: "a few minutes",
		}},
	}
}

func servicePlan(verb, name string, sys models.SystemContext) *Plan {
	verb = strings.ToLower(verb)
	if verb == "status of" || verb == "check" {
		verb = "status"
	}

	var cmd string
	switch sys.ServiceManager {
	case "sysvinit":
		cmd = fmt.Sprintf("sudo service %s %s", name, verb)
	default:
		cmd = fmt.Sprintf("sudo systemctl %s %s", verb, name)
	}
	if verb == "status" {
		// Status checks do not need privileges and must not page.
		cmd = fmt.Sprintf("systemctl status %s --no-pager", name)
		if sys.ServiceManager == "sysvinit" {
			cmd = fmt.Sprintf("service %s status", name)
		}
	}

	return &Plan{
		Intent: fmt.Sprintf("%s the %s service", verb, name),
		Action: "service management",
		Steps: []models.Step{{
			Command:       cmd,
			Explanation:   fmt.Sprintf("%s the %s service", capitalize(verb), name),
			EstimatedTime: "seconds",
		}},
	}
}
