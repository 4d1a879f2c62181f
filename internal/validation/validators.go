// Package validation gates every user-supplied string before it reaches the
// rule model. Label sanitisation is the only defence against injection into
// the nft text format, so the character class is intentionally narrow.
package validation

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"grimm.is/warden/internal/errors"
)

const (
	// MaxLabelLen is the byte limit for rule labels and log prefixes.
	MaxLabelLen = 64

	// MaxInterfaceLen is IFNAMSIZ-1 on Linux.
	MaxInterfaceLen = 15

	// MaxConnectionLimit is the kernel ct count ceiling.
	MaxConnectionLimit = 65535

	// MaxLogRatePerMinute caps drop-logging so it cannot flood syslog.
	MaxLogRatePerMinute = 1000
)

var (
	// Valid interface name: alphanumeric, dash, underscore, dot (for VLANs)
	interfaceNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,15}$`)

	// Valid profile name: alphanumeric, dash, underscore
	profileNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
)

func isLabelChar(r rune) bool {
	if r > 0x7f {
		return false
	}
	if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
		return true
	}
	switch r {
	case ' ', '-', '_', '.', ':':
		return true
	}
	return false
}

// SanitizeLabel keeps only ASCII alphanumerics and {space - _ . :}, truncated
// to MaxLabelLen characters. Idempotent. ASCII-only filtering prevents
// Unicode bypasses and multi-byte length surprises.
func SanitizeLabel(input string) string {
	var sb strings.Builder
	n := 0
	for _, r := range input {
		if !isLabelChar(r) {
			continue
		}
		sb.WriteRune(r)
		n++
		if n == MaxLabelLen {
			break
		}
	}
	return sb.String()
}

// ValidateLabel validates and sanitises a rule label.
func ValidateLabel(input string) (string, error) {
	if len(input) > MaxLabelLen {
		return "", errors.Errorf(errors.KindValidation, "label too long (max %d characters)", MaxLabelLen)
	}

	sanitized := SanitizeLabel(input)
	if sanitized == "" && input != "" {
		return "", errors.New(errors.KindValidation, "label contains only invalid characters")
	}
	return sanitized, nil
}

// ValidatePort rejects port 0; everything else in uint16 range is legal.
func ValidatePort(port uint16) error {
	if port == 0 {
		return errors.New(errors.KindValidation, "port must be between 1 and 65535")
	}
	return nil
}

// ValidatePortRange validates a closed port range.
func ValidatePortRange(start, end uint16) error {
	if err := ValidatePort(start); err != nil {
		return err
	}
	if err := ValidatePort(end); err != nil {
		return err
	}
	if start > end {
		return errors.New(errors.KindValidation, "start port must be less than or equal to end port")
	}
	return nil
}

// ValidateInterface validates a network interface name. Empty means
// "unspecified" and is allowed.
func ValidateInterface(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > MaxInterfaceLen {
		return errors.Errorf(errors.KindValidation, "interface name too long (max %d characters): %s", MaxInterfaceLen, name)
	}
	if name == "." || name == ".." {
		return errors.Errorf(errors.KindValidation, "invalid interface name: %s", name)
	}
	if !interfaceNameRegex.MatchString(name) {
		return errors.Errorf(errors.KindValidation, "interface name contains invalid characters: %s", name)
	}
	return nil
}

// ValidateProfileName validates a profile file name.
func ValidateProfileName(name string) error {
	if name == "" {
		return errors.New(errors.KindValidation, "profile name cannot be empty")
	}
	if name == "." || name == ".." {
		return errors.Errorf(errors.KindValidation, "invalid profile name: %s", name)
	}
	if !profileNameRegex.MatchString(name) {
		return errors.Errorf(errors.KindValidation, "invalid profile name: %s (alphanumeric, dash, underscore, max 64)", name)
	}
	return nil
}

// ValidateCIDR validates an IP address or CIDR network (v4 or v6).
func ValidateCIDR(s string) error {
	if s == "" {
		return errors.New(errors.KindValidation, "IP/CIDR cannot be empty")
	}
	if strings.Contains(s, "/") {
		if _, err := netip.ParsePrefix(s); err != nil {
			return errors.Wrapf(err, errors.KindValidation, "invalid CIDR %q", s)
		}
		return nil
	}
	if _, err := netip.ParseAddr(s); err != nil {
		return errors.Wrapf(err, errors.KindValidation, "invalid IP address %q", s)
	}
	return nil
}

// rateLimitMax returns the hard ceiling and the advisory threshold for a
// rate-limit time unit keyword.
func rateLimitMax(unit string) (max, warn uint32) {
	switch unit {
	case "minute":
		return 100_000, 10_000
	case "hour":
		return 1_000_000, 100_000
	case "day":
		return 10_000_000, 1_000_000
	default: // second
		return 10_000, 1_000
	}
}

// ValidateRateLimit validates a rate-limit count for the given unit. Returns
// a non-empty advisory string for high but acceptable values.
func ValidateRateLimit(count uint32, unit string) (string, error) {
	max, warn := rateLimitMax(unit)
	if count > max {
		return "", errors.Errorf(errors.KindValidation, "rate limit exceeds max %d/%s", max, unit)
	}
	if count > warn {
		return fmt.Sprintf("High rate (%d/%s) - typical: 10-%d", count, unit, warn/10), nil
	}
	return "", nil
}

// ValidateConnectionLimit validates a concurrent-connection cap. 0 means
// disabled and is always valid.
func ValidateConnectionLimit(limit uint32) (string, error) {
	if limit == 0 {
		return "", nil
	}
	if limit > MaxConnectionLimit {
		return "", errors.Errorf(errors.KindValidation, "connection limit exceeds kernel max (%d)", MaxConnectionLimit)
	}
	if limit > 10_000 {
		return fmt.Sprintf("High connection limit (%d) - typical: 10-1000", limit), nil
	}
	return "", nil
}

// ValidateICMPRateLimit validates the global ICMP rate limit. ICMP traffic
// is low-volume, so the ceiling is tighter than general rate limits.
func ValidateICMPRateLimit(rate uint32) (string, error) {
	if rate == 0 {
		return "", nil
	}
	if rate > 1000 {
		return "", errors.New(errors.KindValidation, "ICMP rate exceeds max (1000/sec)")
	}
	if rate > 100 {
		return fmt.Sprintf("ICMP rate (%d/sec) is high - typical: 10 pps", rate), nil
	}
	return "", nil
}

// ValidateLogRate validates the drop-logging rate per minute.
func ValidateLogRate(rate uint32) (string, error) {
	if rate == 0 {
		return "", errors.New(errors.KindValidation, "log rate must be at least 1/min")
	}
	if rate > MaxLogRatePerMinute {
		return "", errors.Errorf(errors.KindValidation, "log rate exceeds max (%d/min)", MaxLogRatePerMinute)
	}
	if rate > 60 {
		return fmt.Sprintf("High log rate (%d/min) - default: 5/min", rate), nil
	}
	return "", nil
}

// ValidateLogPrefix validates and sanitises a kernel log prefix.
func ValidateLogPrefix(prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New(errors.KindValidation, "log prefix cannot be empty")
	}
	if len(prefix) > MaxLabelLen {
		return "", errors.Errorf(errors.KindValidation, "log prefix too long (max %d chars)", MaxLabelLen)
	}

	var sb strings.Builder
	for _, r := range prefix {
		if isLabelChar(r) {
			sb.WriteRune(r)
		}
	}
	sanitized := sb.String()
	if sanitized == "" {
		return "", errors.New(errors.KindValidation, "log prefix contains only invalid characters")
	}
	return sanitized, nil
}

// CheckWellKnownPort returns an informational note for privileged ports.
// Never blocks saving.
func CheckWellKnownPort(port uint16) string {
	if port > 1024 {
		return ""
	}
	var name string
	switch port {
	case 22:
		name = "SSH"
	case 80:
		name = "HTTP"
	case 443:
		name = "HTTPS"
	case 53:
		name = "DNS"
	case 25:
		name = "SMTP"
	case 21:
		name = "FTP"
	default:
		return fmt.Sprintf("Privileged port %d (requires admin)", port)
	}
	return fmt.Sprintf("Port %d: %s", port, name)
}

// CheckReservedIP returns an informational note when the address sits in a
// reserved range. Never blocks saving. Invalid input yields no note; the
// hard validation lives in ValidateCIDR.
func CheckReservedIP(s string) string {
	var addr netip.Addr
	if strings.Contains(s, "/") {
		prefix, err := netip.ParsePrefix(s)
		if err != nil {
			return ""
		}
		addr = prefix.Addr()
	} else {
		var err error
		addr, err = netip.ParseAddr(s)
		if err != nil {
			return ""
		}
	}

	if addr.Is4() {
		o := addr.As4()
		switch {
		case o[0] == 10,
			o[0] == 172 && o[1] >= 16 && o[1] <= 31,
			o[0] == 192 && o[1] == 168:
			return "Private IP range (RFC 1918) - usually safe for LAN"
		case o[0] == 127:
			return "Loopback range (127.x) - loopback rules already exist"
		case o[0] == 169 && o[1] == 254:
			return "Link-local range (169.254.x.x) - APIPA addresses"
		}
		return ""
	}

	if addr.IsLoopback() {
		return "IPv6 loopback (::1) - loopback rules already exist"
	}
	if addr.IsLinkLocalUnicast() {
		return "IPv6 link-local (fe80::/10) - local network only"
	}
	return ""
}
