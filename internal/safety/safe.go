// internal/safety/safe.go
package safety

import "strings"

// safePrefixes are read-only diagnostics that cannot change system state.
// A command qualifying here may be auto-approved without a human decision;
// everything else waits for one.
var safePrefixes = []string{
	"df",
	"free",
	"uptime",
	"whoami",
	"hostname",
	"uname",
	"date",
	"id",
	"ps",
	"top -b -n 1",
	"ls",
	"cat /etc/os-release",
	"cat /proc/",
	"ss -",
	"ip addr",
	"ip route",
	"systemctl status",
	"journalctl",
	"du -",
	"lsblk",
	"command -v",
	"which",
	"echo",
}

// IsSafeReadOnly reports whether a command starts with a known read-only
// prefix. Shell metacharacters disqualify a command outright: a safe prefix
// followed by `;` or `&&` proves nothing about what runs next.
func IsSafeReadOnly(command string) bool {
	trimmed := strings.TrimSpace(command)
	if trimmed == "" {
		return false
	}
	if strings.ContainsAny(trimmed, ";&`$><") {
		return false
	}
	lowered := strings.ToLower(trimmed)
	for _, prefix := range safePrefixes {
		if lowered == prefix || strings.HasPrefix(lowered, prefix+" ") {
			return true
		}
		// Prefixes ending in a path or flag separator match directly:
		// "cat /proc/" covers "cat /proc/meminfo".
		if last := prefix[len(prefix)-1]; (last == '/' || last == '-') && strings.HasPrefix(lowered, prefix) {
			return true
		}
	}
	// sysvinit status checks put the verb last: "service <name> status".
	if fields := strings.Fields(lowered); len(fields) == 3 && fields[0] == "service" && fields[2] == "status" {
		return true
	}
	return false
}
