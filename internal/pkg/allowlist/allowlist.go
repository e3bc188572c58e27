package allowlist

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

var (
	// ErrEmptyEntry is returned for a blank entry.
	ErrEmptyEntry = errors.New("allowlist: entry is empty")
	// ErrInvalidAddress is returned when an entry is neither IPv4 nor IPv6.
	ErrInvalidAddress = errors.New("allowlist: invalid address")
	// ErrInvalidPrefix is returned for a CIDR prefix outside the address size.
	ErrInvalidPrefix = errors.New("allowlist: invalid prefix length")
)

type entry struct {
	raw     string
	v4      bool
	network uint32
	mask    uint32
}

// Matcher is an immutable, parsed allowlist.
type Matcher struct {
	entries []entry
}

// New parses entries into a Matcher. Blank and invalid entries are skipped;
// use ValidateEntry when accepting entries from an administrator.
func New(entries []string) *Matcher {
	cleaned := lo.Uniq(lo.Compact(lo.Map(entries, func(e string, _ int) string {
		return strings.TrimSpace(e)
	})))

	m := &Matcher{entries: make([]entry, 0, len(cleaned))}
	for _, raw := range cleaned {
		e, err := parseEntry(raw)
		if err != nil {
			continue
		}
		m.entries = append(m.entries, e)
	}
	return m
}

// Len returns the number of usable entries.
func (m *Matcher) Len() int {
	return len(m.entries)
}

// Contains reports whether addr matches any entry.
func (m *Matcher) Contains(addr string) bool {
	addr = strings.TrimSpace(addr)
	if m == nil || addr == "" {
		return false
	}

	ip, isV4 := parseIPv4(addr)
	for _, e := range m.entries {
		if e.v4 && isV4 {
			if ip&e.mask == e.network {
				return true
			}
			continue
		}
		if e.raw == addr {
			return true
		}
	}
	return false
}

// IsWhitelisted reports whether addr is allowlisted, honouring the
// administrative enable flag.
func IsWhitelisted(enabled bool, entries []string, addr string) bool {
	if !enabled {
		return false
	}
	return New(entries).Contains(addr)
}

// ValidateEntry checks that entry is a literal IPv4/IPv6 address or a CIDR
// block with a prefix that fits the address family.
func ValidateEntry(entry string) error {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return ErrEmptyEntry
	}
	_, err := parseEntry(entry)
	return err
}

func parseEntry(raw string) (entry, error) {
	host, prefixStr, hasPrefix := strings.Cut(raw, "/")

	if ip, ok := parseIPv4(host); ok {
		bits := 32
		if hasPrefix {
			p, err := strconv.Atoi(prefixStr)
			if err != nil || p < 0 || p > 32 {
				return entry{}, fmt.Errorf("%w: %q", ErrInvalidPrefix, raw)
			}
			bits = p
		}
		mask := prefixMask(bits)
		return entry{raw: raw, v4: true, network: ip & mask, mask: mask}, nil
	}

	if !isIPv6(host) {
		return entry{}, fmt.Errorf("%w: %q", ErrInvalidAddress, raw)
	}
	if hasPrefix {
		p, err := strconv.Atoi(prefixStr)
		if err != nil || p < 0 || p > 128 {
			return entry{}, fmt.Errorf("%w: %q", ErrInvalidPrefix, raw)
		}
	}
	return entry{raw: raw}, nil
}

func prefixMask(bits int) uint32 {
	if bits == 0 {
		return 0
	}
	return ^uint32(0) << (32 - bits)
}

// parseIPv4 parses a dotted quad into a 32-bit integer. Octets above 255,
// empty octets and leading signs are rejected.
func parseIPv4(s string) (uint32, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, false
	}

	var ip uint32
	for _, p := range parts {
		if p == "" || len(p) > 3 {
			return 0, false
		}
		n := 0
		for i := 0; i < len(p); i++ {
			if p[i] < '0' || p[i] > '9' {
				return 0, false
			}
			n = n*10 + int(p[i]-'0')
		}
		if n > 255 {
			return 0, false
		}
		ip = ip<<8 | uint32(n)
	}
	return ip, true
}

// isIPv6 is a structural check: hex groups separated by colons, at most one
// "::", and no more than eight groups.
func isIPv6(s string) bool {
	if !strings.Contains(s, ":") || strings.Contains(s, ":::") || strings.Count(s, "::") > 1 {
		return false
	}

	groups := strings.Split(s, ":")
	maxGroups := 8
	if strings.Contains(s, "::") {
		maxGroups = 9
	}
	if len(groups) > maxGroups {
		return false
	}
	for _, g := range groups {
		if len(g) > 4 {
			return false
		}
		for i := 0; i < len(g); i++ {
			c := g[i]
			if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F') {
				return false
			}
		}
	}
	return true
}
