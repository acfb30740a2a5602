package remote

import "strings"

// NormalizeAddresses trims each address and its trailing '/', drops empty
// entries and keeps the first occurrence of duplicates. Order is preserved.
func NormalizeAddresses(lists ...[]string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, list := range lists {
		for _, raw := range list {
			addr := strings.TrimRight(strings.TrimSpace(raw), "/")
			if addr == "" {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}
