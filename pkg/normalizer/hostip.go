package normalizer

import (
	"net"
	"regexp"
	"strings"
)

var sourceIPAliases = []string{"source_ip", "fromhost_ip", "ip", "client_ip", "src_ip"}

var (
	timestampLikeHost = regexp.MustCompile(`^(\d{2}:\d{2}:\d{2}|\d{4}-\d{2}-\d{2}T\S*)$`)
	bareNumberHost    = regexp.MustCompile(`^\d+(\.\d+)?$`)
	punctuationHost   = regexp.MustCompile(`^[^\w]+$`)
)

// CleanTransportAddr reduces transport-address forms to a bare IP:
// "udp://1.2.3.4:52502" → "1.2.3.4", "[::1]:5140" → "::1", "1.2.3.4:514" →
// "1.2.3.4". Non-address strings come back trimmed but otherwise untouched.
// Idempotent.
func CleanTransportAddr(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if idx := strings.Index(s, "://"); idx >= 0 {
		s = s[idx+3:]
	}
	// Bracketed IPv6, optionally with port.
	if strings.HasPrefix(s, "[") {
		if end := strings.Index(s, "]"); end > 0 {
			inner := s[1:end]
			if net.ParseIP(inner) != nil {
				return inner
			}
		}
	}
	if net.ParseIP(s) != nil {
		return s
	}
	// host:port where host is an IP.
	if host, _, err := net.SplitHostPort(s); err == nil && net.ParseIP(host) != nil {
		return host
	}
	return s
}

// isDockerNAT reports whether an IP is a Docker bridge/NAT artifact:
// 172.16.0.0/12, loopback v4, or loopback v6.
func isDockerNAT(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	_, dockerRange, _ := net.ParseCIDR("172.16.0.0/12")
	return dockerRange.Contains(parsed)
}

// isPublicIPv4 reports whether host parses as an IPv4 outside the Docker-NAT
// ranges, i.e. a plausible true origin.
func isPublicIPv4(host string) bool {
	parsed := net.ParseIP(host)
	if parsed == nil || parsed.To4() == nil {
		return false
	}
	return !isDockerNAT(host)
}

// bogusHost rejects host values that look like misaligned parser output:
// timestamps, bare numbers, punctuation-only strings.
func bogusHost(host string) bool {
	if host == "" {
		return true
	}
	return timestampLikeHost.MatchString(host) ||
		bareNumberHost.MatchString(host) ||
		punctuationHost.MatchString(host)
}

// resolveHostAndIP resolves (host, source_ip) from entry aliases, the syslog
// header host, and the transport peer address, applying the Docker-NAT
// override and bogus-host rejection.
func resolveHostAndIP(entry map[string]any, peerAddr string) (host, sourceIP string) {
	for _, key := range sourceIPAliases {
		if s, ok := entry[key].(string); ok && strings.TrimSpace(s) != "" {
			sourceIP = CleanTransportAddr(s)
			break
		}
	}

	if h, ok := entry["host"].(string); ok {
		host = CleanTransportAddr(h)
	}

	if sourceIP == "" && peerAddr != "" {
		sourceIP = CleanTransportAddr(peerAddr)
	}

	// Docker-NAT override: a NAT source with a real IPv4 in the header means
	// the header carries the true origin.
	if sourceIP != "" && isDockerNAT(sourceIP) && isPublicIPv4(host) {
		sourceIP = host
	}

	if bogusHost(host) {
		host = sourceIP
	}
	if host == "" {
		host = sourceIP
	}
	return host, sourceIP
}
