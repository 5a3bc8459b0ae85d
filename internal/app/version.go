package app

// BuildInfo describes the running server build, used for DI.
type BuildInfo struct {
	Version  string `json:"semver"`
	Revision string `json:"rev,omitempty"`
}
