package config

import (
	"fmt"
	"runtime"
)

var VersionInfo = &AgentVersion{GitCommit: "undefined", GitRef: "no-ref", Version: "local"}

type AgentVersion struct {
	GitCommit, GitRef, Version string
}

func (a *AgentVersion) String() string {
	return fmt.Sprintf("GitCommit=%q GitRef=%q Version=%q", a.GitCommit, a.GitRef, a.Version)
}

// UserAgent identifies the agent in API server audit logs.
func (a *AgentVersion) UserAgent() string {
	return fmt.Sprintf("mirror-agent/%s (%s/%s) %s", a.Version, runtime.GOOS, runtime.GOARCH, a.GitCommit)
}
