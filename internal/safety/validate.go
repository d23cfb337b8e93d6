// internal/safety/validate.go
package safety

import "regexp"

const maxRequestLength = 1000

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// IsValidHostname checks basic hostname format.
func IsValidHostname(hostname string) bool {
	if hostname == "" || len(hostname) > 255 {
		return false
	}
	return hostnameRegex.MatchString(hostname)
}

// IsValidPort checks a TCP port number.
func IsValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

// IsValidTaskRequest checks a free-text task request for emptiness and length.
func IsValidTaskRequest(request string) bool {
	trimmed := 0
	for _, r := range request {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			trimmed++
		}
	}
	return trimmed > 0 && len(request) <= maxRequestLength
}
