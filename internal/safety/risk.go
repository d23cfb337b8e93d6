// internal/safety/risk.go
package safety

import (
	"regexp"

	"github.com/otium-ai/ops-agent-api-server/internal/models"
)

// Risk tiers mirror how an operator would triage a command before running
// it by hand. Generated plans carry their own labels, but those are
// untrusted; AssessRisk re-labels every step at the boundary.

var criticalRiskPatterns = compileAll(
	`rm\s+-rf\s+/`,
	`dd\s+if=/dev/`,
	`mkfs`,
	`fdisk`,
	`parted`,
	`sudo\s+rm\s+-rf`,
	`sudo\s+chmod\s+777`,
	`sudo\s+passwd`,
	`sudo\s+useradd`,
	`sudo\s+groupadd`,
)

var highRiskPatterns = compileAll(
	`chmod\s+777`,
	`chown\s+-R`,
	`systemctl\s+(stop|disable)`,
	`service\s+\w+\s+(stop|disable)`,
	`iptables\s+-F`,
	`ufw\s+--force\s+reset`,
	`crontab\s+-r`,
	`passwd\s+\w+`,
	`useradd\s+\w+`,
	`groupadd\s+\w+`,
)

var mediumRiskPatterns = compileAll(
	`systemctl\s+(start|restart|reload)`,
	`service\s+\w+\s+(start|restart|reload)`,
	`chmod\s+[0-7]{3,4}`,
	`chown\s+\w+:\w+`,
	`crontab\s+-e`,
	`iptables\s+-\w+`,
	`ufw\s+(allow|deny)`,
	`apt\s+(install|remove|purge)`,
	`apt-get\s+(install|remove|purge)`,
	`yum\s+(install|remove)`,
	`dnf\s+(install|remove)`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(`(?i)`+p))
	}
	return compiled
}

// AssessRisk classifies a command into a risk tier. Read-only commands fall
// through to low.
func AssessRisk(command string) models.RiskLevel {
	for _, re := range criticalRiskPatterns {
		if re.MatchString(command) {
			return models.RiskCritical
		}
	}
	for _, re := range highRiskPatterns {
		if re.MatchString(command) {
			return models.RiskHigh
		}
	}
	for _, re := range mediumRiskPatterns {
		if re.MatchString(command) {
			return models.RiskMedium
		}
	}
	return models.RiskLow
}

// MaxRisk returns the higher of two risk levels.
func MaxRisk(a, b models.RiskLevel) models.RiskLevel {
	if riskRank(a) >= riskRank(b) {
		return a
	}
	return b
}

func riskRank(r models.RiskLevel) int {
	switch r {
	case models.RiskCritical:
		return 3
	case models.RiskHigh:
		return 2
	case models.RiskMedium:
		return 1
	default:
		return 0
	}
}
