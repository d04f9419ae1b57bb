//go:build linux

package restart

// DefaultKind is the restarter used when none is configured.
const DefaultKind = KindSystemd
