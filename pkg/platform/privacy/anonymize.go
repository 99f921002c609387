// Package privacy reduces personal data to what logs and metrics may keep.
package privacy

import (
	"fmt"
	"net/netip"
	"strings"
)

// AnonymizeIP keeps the network and drops the host: IPv4 is cut to its /24
// ("192.168.1.47" -> "192.168.1.0") and IPv6 to its /48
// ("2001:db8:85a3::8a2e:370:7334" -> "2001:0db8:85a3::"). Empty input yields
// "unknown" and unparseable input "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()
	if addr.Is4() {
		prefix, _ := addr.Prefix(24)
		return prefix.Addr().String()
	}
	b := addr.As16()
	return fmt.Sprintf("%02x%02x:%02x%02x:%02x%02x::", b[0], b[1], b[2], b[3], b[4], b[5])
}

// MaskEmail keeps the first character of the local part and the domain
// ("ada@example.org" -> "a***@example.org"). Recipients of shared
// credentials are logged this way.
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
