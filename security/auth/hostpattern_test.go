package auth

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, input string) HostPattern {
	t.Helper()
	p, err := ParseHostPattern(input)
	require.NoError(t, err)
	return p
}

func TestParseHostPattern(t *testing.T) {
	tests := []struct {
		input string
		kind  HostKind
		addr  string
		bits  uint8
	}{
		{"%", HostAny, "0.0.0.0", 0},
		{"", HostAny, "0.0.0.0", 0},
		{"192.0.2.7", HostPrefix, "192.0.2.7", 32},
		{"10.0.0.%", HostPrefix, "10.0.0.0", 24},
		{"10.0.%.%", HostPrefix, "10.0.0.0", 16},
		{"10.%.%.%", HostPrefix, "10.0.0.0", 8},
		{"10.%", HostPrefix, "10.0.0.0", 8},
		{"10.0.%", HostPrefix, "10.0.0.0", 16},
		{"10.1.0.0/255.255.0.0", HostPrefix, "10.1.0.0", 16},
		{"10.0.0.0/255.255.255.0", HostPrefix, "10.0.0.0", 24},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := mustParse(t, tt.input)
			require.Equal(t, tt.kind, p.Kind)
			require.Equal(t, tt.bits, p.Bits)
			want, ok := IPv4ToUint(net.ParseIP(tt.addr))
			require.True(t, ok)
			require.Equal(t, want, p.Addr)
		})
	}
}

func TestParseSingleCharWildcard(t *testing.T) {
	p := mustParse(t, "192.168.1._")
	require.Equal(t, HostSingleChar, p.Kind)
	require.Equal(t, "192.168.1._", p.Pattern)
	// Single-char rows carry a zero prefix; the numeric path never admits them.
	require.Equal(t, uint32(0), p.Addr)
	require.Equal(t, uint8(0), p.Bits)
}

func TestParseHostname(t *testing.T) {
	p := mustParse(t, "app-01.example.com")
	require.Equal(t, HostName, p.Kind)
	require.Equal(t, "app-01.example.com", p.Pattern)
	require.Equal(t, uint8(32), p.Bits)

	ip, _ := IPv4ToUint(net.ParseIP("192.0.2.1"))
	require.False(t, p.MatchAddr(ip))
}

func TestParseBadNetmask(t *testing.T) {
	_, err := ParseHostPattern("10.1.0.0/255.255.128.0")
	require.Error(t, err)

	_, err = ParseHostPattern("10.1.0.0/255.255.0")
	require.Error(t, err)
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"%", "192.0.2.7", "10.0.0.%", "10.%", "10.1.0.0/255.255.0.0",
		"192.168.1._", "db.example.org",
	}
	for _, input := range inputs {
		p := mustParse(t, input)
		again := mustParse(t, p.String())
		require.Equal(t, p, again, "canonicalize(%q) not idempotent", input)
	}
}

func TestMatchAddr(t *testing.T) {
	addr := func(s string) uint32 {
		v, ok := IPv4ToUint(net.ParseIP(s))
		require.True(t, ok)
		return v
	}

	tests := []struct {
		pattern string
		client  string
		want    bool
	}{
		{"%", "192.0.2.7", true},
		{"192.0.2.7", "192.0.2.7", true},
		{"192.0.2.7", "192.0.2.8", false},
		{"10.0.0.%", "10.0.0.42", true},
		{"10.0.0.%", "10.0.1.42", false},
		{"10.1.0.0/255.255.0.0", "10.1.9.9", true},
		{"10.1.0.0/255.255.0.0", "10.2.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.client, func(t *testing.T) {
			p := mustParse(t, tt.pattern)
			require.Equal(t, tt.want, p.MatchAddr(addr(tt.client)))
		})
	}
}

func TestMatchCanonicalEquivalence(t *testing.T) {
	// Matching through the canonical text must agree with matching the
	// original pattern.
	patterns := []string{"%", "10.0.0.%", "10.%", "10.1.0.0/255.255.0.0", "192.0.2.7"}
	clients := []string{"10.0.0.1", "10.1.2.3", "10.255.0.9", "192.0.2.7", "172.16.0.1"}

	for _, pat := range patterns {
		p := mustParse(t, pat)
		canon := mustParse(t, p.String())
		for _, client := range clients {
			ip, _ := IPv4ToUint(net.ParseIP(client))
			require.Equal(t, p.MatchAddr(ip), canon.MatchAddr(ip),
				"pattern %q vs canonical %q on %s", pat, p.String(), client)
		}
	}
}

func TestMatchSingleChar(t *testing.T) {
	p := mustParse(t, "192.168.1._")
	require.True(t, p.MatchSingleChar("192.168.1.5"))
	require.False(t, p.MatchSingleChar("192.168.1.42"))
	require.False(t, p.MatchSingleChar(""))
}

func TestMatchHostnameNeedsBothSides(t *testing.T) {
	p := mustParse(t, "app-01.example.com")
	require.True(t, p.MatchHostname("app-01.example.com"))
	require.True(t, p.MatchHostname("APP-01.Example.COM"))
	require.False(t, p.MatchHostname(""))

	// Non-hostname rows never take the hostname path, even with empty
	// pattern fields on both sides.
	numeric := mustParse(t, "10.0.0.1")
	require.False(t, numeric.MatchHostname(""))
	require.False(t, numeric.MatchHostname("10.0.0.1"))
}
