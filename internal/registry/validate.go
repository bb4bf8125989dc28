package registry

import (
	"net"
	"strings"
)

const minPeerIDLength = 10

func validateRegistration(reg Registration) []string {
	var violations []string

	if reg.ID == "" {
		violations = append(violations, "id is required")
	} else if len(reg.ID) < minPeerIDLength {
		violations = append(violations, "id must be at least 10 characters")
	}

	if reg.IP == "" {
		violations = append(violations, "ip is required")
	} else if !validAddress(reg.IP) {
		violations = append(violations, "ip must be a valid IPv4 or IPv6 address")
	}

	if reg.Port < 1 || reg.Port > 65535 {
		violations = append(violations, "port must be between 1 and 65535")
	}

	return violations
}

// validAddress accepts dotted-quad IPv4. Anything containing a colon is
// taken to be IPv6 without further parsing, matching the loose acceptance
// the wire protocol has always had.
func validAddress(ip string) bool {
	if strings.Contains(ip, ":") {
		return true
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.To4() != nil
}
