// Package auth implements the user authentication catalog: the local
// snapshot of backend grant tables and the matching logic used during the
// MySQL handshake.
package auth

import (
	"encoding/binary"
	"net"
	"strconv"
	"strings"

	"github.com/turtacn/guomen/common/errors"
)

// HostKind distinguishes the recognized shapes of the mysql.user host
// column.
type HostKind int

const (
	// HostAny is the '%' pattern: every client address matches.
	HostAny HostKind = iota
	// HostPrefix is a numeric IPv4 prefix.
	HostPrefix
	// HostSingleChar is an IPv4-shaped pattern containing '_', matched
	// character by character against the dotted client address.
	HostSingleChar
	// HostName is a literal host name, compared against the client's
	// reverse-DNS name.
	HostName
)

// HostPattern is the canonical form of one host column value.
type HostPattern struct {
	Kind HostKind
	// Addr holds the numeric prefix with the low 32-Bits bits zeroed.
	Addr uint32
	// Bits is the number of significant prefix bits.
	Bits uint8
	// Pattern keeps the literal text for HostSingleChar and HostName.
	Pattern string
}

// ParseHostPattern canonicalizes a mysql.user host column value.
//
// Recognized shapes: '%', a dotted IPv4 address, an IPv4 with trailing '%'
// octets (including the short forms a.% and a.b.%), an addr/mask pair whose
// mask octets are all 255 or 0, an IPv4 shape containing '_', and a literal
// host name.
func ParseHostPattern(input string) (HostPattern, error) {
	if input == "" || input == "%" {
		return HostPattern{Kind: HostAny}, nil
	}

	if strings.ContainsRune(input, '/') {
		rewritten, err := rewriteNetmask(input)
		if err != nil {
			return HostPattern{}, err
		}
		return ParseHostPattern(rewritten)
	}

	if isAddressShape(input) {
		if strings.ContainsRune(input, '_') && !strings.ContainsRune(input, '%') {
			// Single-character wildcards keep the literal pattern with a
			// zero prefix; MatchAddr admits only HostAny and HostPrefix,
			// so these rows never match on the numeric path.
			return HostPattern{Kind: HostSingleChar, Pattern: input}, nil
		}
		if p, ok := parsePrefix(input); ok {
			return p, nil
		}
	}

	if strings.ContainsAny(input, "%_") {
		return HostPattern{}, errors.ErrParseFailed.New(input)
	}

	// A literal host name, recorded with Bits 32. MatchAddr never admits
	// it; it matches only through MatchHostname.
	return HostPattern{Kind: HostName, Bits: 32, Pattern: input}, nil
}

// isAddressShape reports whether the input contains only the characters an
// IPv4 pattern may carry.
func isAddressShape(input string) bool {
	for i := 0; i < len(input); i++ {
		c := input[i]
		if c != '.' && c != '%' && c != '_' && (c < '0' || c > '9') {
			return false
		}
	}
	return strings.ContainsRune(input, '.') || input == "%"
}

// parsePrefix canonicalizes a dotted pattern with optional trailing '%'
// octets into a numeric prefix.
func parsePrefix(input string) (HostPattern, bool) {
	octets := strings.Split(input, ".")
	if len(octets) > 4 {
		return HostPattern{}, false
	}

	// Expand the short forms a.% and a.b.% to four octets. The last octet
	// is written as 1 so that address parsers downstream do not reject the
	// expanded string; the prefix mask clears it again below.
	if len(octets) < 4 {
		if octets[len(octets)-1] != "%" {
			return HostPattern{}, false
		}
		for len(octets) < 3 {
			octets = append(octets, "0")
		}
		octets = append(octets, "1")
	}

	var addr uint32
	bits := 0
	sawWildcard := false
	for i, oct := range octets {
		if oct == "%" {
			sawWildcard = true
			continue
		}
		n, err := strconv.Atoi(oct)
		if err != nil || n < 0 || n > 255 {
			return HostPattern{}, false
		}
		addr |= uint32(n) << uint(24-8*i)
		if !sawWildcard {
			bits = 8 * (i + 1)
		}
	}

	if bits == 0 {
		return HostPattern{Kind: HostAny}, true
	}

	p := HostPattern{Kind: HostPrefix, Addr: maskAddr(addr, uint8(bits)), Bits: uint8(bits)}
	if p.Bits == 0 {
		p.Kind = HostAny
	}
	return p, true
}

// rewriteNetmask converts the addr/mask form into the wildcard-octet form:
// every octet whose mask is 0 and whose address is 0 becomes '%'.
func rewriteNetmask(input string) (string, error) {
	parts := strings.SplitN(input, "/", 2)
	addrOctets := strings.Split(parts[0], ".")
	maskOctets := strings.Split(parts[1], ".")
	if len(addrOctets) != 4 || len(maskOctets) != 4 {
		return "", errors.ErrParseFailed.New(input)
	}

	out := make([]string, 4)
	for i := 0; i < 4; i++ {
		switch maskOctets[i] {
		case "255":
			out[i] = addrOctets[i]
		case "0":
			if addrOctets[i] == "0" {
				out[i] = "%"
			} else {
				out[i] = addrOctets[i]
			}
		default:
			return "", errors.ErrParseFailed.New(input)
		}
	}
	return strings.Join(out, "."), nil
}

func maskAddr(addr uint32, bits uint8) uint32 {
	if bits == 0 {
		return 0
	}
	return addr &^ (1<<(32-uint(bits)) - 1)
}

// String renders the canonical text of the pattern. Parsing the result
// yields an identical pattern.
func (p HostPattern) String() string {
	switch p.Kind {
	case HostAny:
		return "%"
	case HostPrefix:
		octets := make([]string, 4)
		for i := 0; i < 4; i++ {
			if 8*(i+1) > int(p.Bits) {
				octets[i] = "%"
			} else {
				octets[i] = strconv.Itoa(int(p.Addr >> uint(24-8*i) & 0xff))
			}
		}
		return strings.Join(octets, ".")
	default:
		return p.Pattern
	}
}

// MatchAddr reports whether a client IPv4 address matches the numeric
// prefix. Only HostAny and HostPrefix patterns match numerically.
func (p HostPattern) MatchAddr(ip uint32) bool {
	switch p.Kind {
	case HostAny:
		return true
	case HostPrefix:
		if p.Bits == 0 {
			return true
		}
		shift := uint(32 - p.Bits)
		return ip>>shift == p.Addr>>shift
	}
	return false
}

// MatchSingleChar matches the dotted client address against a pattern
// containing '_' wildcards, byte for byte.
func (p HostPattern) MatchSingleChar(addr string) bool {
	if p.Kind != HostSingleChar || addr == "" || p.Pattern == "" {
		return false
	}
	if len(p.Pattern) != len(addr) {
		return false
	}
	for i := 0; i < len(addr); i++ {
		if p.Pattern[i] == '_' {
			continue
		}
		if p.Pattern[i] != addr[i] {
			return false
		}
	}
	return true
}

// MatchHostname compares a literal host name pattern against the client's
// resolved name. Both sides must be non-empty.
func (p HostPattern) MatchHostname(name string) bool {
	if p.Kind != HostName || name == "" || p.Pattern == "" {
		return false
	}
	return strings.EqualFold(p.Pattern, name)
}

// IPv4ToUint converts a client address to its numeric form. The second
// return value is false for non-IPv4 addresses.
func IPv4ToUint(ip net.IP) (uint32, bool) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, false
	}
	return binary.BigEndian.Uint32(v4), true
}

// UintToIPv4 converts the numeric form back to a net.IP.
func UintToIPv4(v uint32) net.IP {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return net.IPv4(b[0], b[1], b[2], b[3])
}
