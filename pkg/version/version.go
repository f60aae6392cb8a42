// Package version reports the build of the playground binary.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"
)

var (
	// Version is the release of playground, set at build time
	Version = "dev"

	// GitCommit is the commit the binary was built from, set at build time
	GitCommit = "unknown"

	// BuildTime is set at build time
	BuildTime = "unknown"
)

// Info represents version information
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	// SchemaVersion is the latest database schema this build converges to
	SchemaVersion int `json:"schemaVersion,omitempty"`
}

// Get returns the version information
func Get() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// WithSchema returns a copy carrying the latest schema version
func (i Info) WithSchema(schemaVersion int) Info {
	i.SchemaVersion = schemaVersion
	return i
}

// String returns the string representation of version info
func (i Info) String() string {
	s := fmt.Sprintf("Version: %s, GitCommit: %s, BuildTime: %s, GoVersion: %s", i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
	if i.SchemaVersion != 0 {
		s += fmt.Sprintf(", SchemaVersion: %d", i.SchemaVersion)
	}
	return s
}

// JSON returns the JSON representation of version info
func (i Info) JSON() (string, error) {
	bytes, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}
