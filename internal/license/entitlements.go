package license

import "strings"

// ParseEntitlements splits a comma-separated entitlement list. Blank segments
// are dropped; order and duplicates are kept.
func ParseEntitlements(raw string) []string {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}
