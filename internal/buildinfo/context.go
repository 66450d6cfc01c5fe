// Package buildinfo holds build-time metadata, kept apart from user configuration.
package buildinfo

import "fmt"

// UnknownValue is reported for metadata that was not injected at build time.
const UnknownValue = "unknown"

// Context contains build-time metadata that is not user-configurable.
// It is injected at startup from linker flags.
type Context struct {
	version   string
	buildDate string
	systemID  string
}

// NewContext creates a build context. Empty values report as UnknownValue.
func NewContext(version, buildDate, systemID string) *Context {
	return &Context{version: version, buildDate: buildDate, systemID: systemID}
}

func valueOrUnknown(s string) string {
	if s == "" {
		return UnknownValue
	}
	return s
}

// Version returns the git version tag of the build.
func (c *Context) Version() string {
	if c == nil {
		return UnknownValue
	}
	return valueOrUnknown(c.version)
}

// BuildDate returns the time the binary was built.
func (c *Context) BuildDate() string {
	if c == nil {
		return UnknownValue
	}
	return valueOrUnknown(c.buildDate)
}

// SystemID identifies the acquisition host in telemetry and stream metadata.
func (c *Context) SystemID() string {
	if c == nil {
		return UnknownValue
	}
	return valueOrUnknown(c.systemID)
}

// Release returns the release name reported to error telemetry.
func (c *Context) Release() string {
	return "ddrs4pals@" + c.Version()
}

func (c *Context) String() string {
	return fmt.Sprintf("ddrs4pals %s (built %s, system %s)", c.Version(), c.BuildDate(), c.SystemID())
}
