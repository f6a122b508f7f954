// Package hints resolves per-platform install remediation strings for
// tools that could not be found or started. The launcher only surfaces
// these; it never runs an installer on its own.
package hints

import "runtime"

// Fallback is shown when a tool carries no hint for the current platform.
const Fallback = "Install from the vendor site (check the tool's documentation)."

// For returns the remediation string for the current platform.
func For(installHints map[string]string) string {
	return ForPlatform(installHints, runtime.GOOS)
}

// ForPlatform returns the remediation string for the given platform
// identifier (runtime.GOOS values: "linux", "darwin", "windows", ...).
func ForPlatform(installHints map[string]string, platform string) string {
	if hint, ok := installHints[platform]; ok && hint != "" {
		return hint
	}
	return Fallback
}
