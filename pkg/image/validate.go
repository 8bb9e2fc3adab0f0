package image

import "strings"

// IsUsable reports whether a raw image reference can be handed to the browser.
// Empty values and stringified null references from upstream data are not.
func IsUsable(rawPath string) bool {
	p := strings.TrimSpace(rawPath)
	switch p {
	case "", "undefined", "null":
		return false
	}
	return true
}
