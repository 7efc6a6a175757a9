package network_config

import (
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

type member struct {
	key   string
	value gjson.Result
}

// sortedMembers returns the members of an object ordered by key.
func sortedMembers(obj gjson.Result) []member {
	var members []member
	obj.ForEach(func(key, value gjson.Result) bool {
		members = append(members, member{key: key.String(), value: value})
		return true
	})
	sort.SliceStable(members, func(i, j int) bool { return members[i].key < members[j].key })
	return members
}

// truthy follows the usual JSON-document notion of a set value.
func truthy(r gjson.Result) bool {
	switch r.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.Number:
		return r.Num != 0
	case gjson.String:
		return r.Str != ""
	}
	return r.Exists()
}

type assignment struct {
	prefix netip.Prefix
	owner  string
}

// Validate checks a candidate network document and returns the first
// problem found, or nil. Interface types and names are visited in sorted
// order so the result is deterministic.
func Validate(doc []byte) []string {
	if len(strings.TrimSpace(string(doc))) == 0 || !gjson.ValidBytes(doc) {
		return []string{"config is not defined"}
	}
	root := gjson.ParseBytes(doc)
	if !truthy(root) {
		return []string{"config is not defined"}
	}
	interfaces := root.Get("interface")
	if !truthy(interfaces) {
		return []string{"interface is not defined"}
	}

	var assigned []assignment
	for _, section := range sortedMembers(interfaces) {
		for _, iface := range sortedMembers(section.value) {
			for _, addr := range addressesOf(iface.value) {
				prefix, ok := parseIPv4(addr)
				if !ok {
					return []string{fmt.Sprintf("ipv4 of %s is not valid %s", iface.key, addr)}
				}
				for _, other := range assigned {
					if other.owner == iface.key {
						continue
					}
					if inSubnet(prefix, other.prefix) || inSubnet(other.prefix, prefix) {
						return []string{fmt.Sprintf("ipv4 of %s conflicts with ipv4 of %s", iface.key, other.owner)}
					}
				}
				assigned = append(assigned, assignment{prefix: prefix, owner: iface.key})
			}
		}
	}
	return nil
}

// addressesOf returns the de-duplicated union of ipv4 and ipv4s. ipv4 only
// counts when it is a non-empty string; every ipv4s entry is checked.
func addressesOf(settings gjson.Result) []string {
	var addrs []string
	seen := make(map[string]bool)
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			addrs = append(addrs, s)
		}
	}

	if r := settings.Get("ipv4"); r.Type == gjson.String && r.Str != "" {
		add(r.Str)
	}
	if list := settings.Get("ipv4s"); list.IsArray() {
		for _, r := range list.Array() {
			if r.Type == gjson.String {
				add(r.Str)
			} else {
				add(r.Raw)
			}
		}
	}
	return addrs
}

// parseIPv4 accepts "a.b.c.d" and "a.b.c.d/n". The host bits are kept.
func parseIPv4(s string) (netip.Prefix, bool) {
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil || !p.Addr().Is4() {
			return netip.Prefix{}, false
		}
		return p, true
	}
	a, err := netip.ParseAddr(s)
	if err != nil || !a.Is4() {
		return netip.Prefix{}, false
	}
	return netip.PrefixFrom(a, 32), true
}

// inSubnet reports whether a lies inside the subnet b.
func inSubnet(a, b netip.Prefix) bool {
	return a.Bits() >= b.Bits() && b.Masked().Contains(a.Addr())
}
