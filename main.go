package main

import (
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"

	"mirror-agent/cmd"
	"mirror-agent/internal/config"
)

// These should be set via `go build` during a release
var (
	GitCommit = "undefined"
	GitRef    = "no-ref"
	Version   = "local"
)

func main() {
	config.VersionInfo = &config.AgentVersion{
		GitCommit: GitCommit,
		GitRef:    GitRef,
		Version:   Version,
	}

	cmd.Execute(signals.SetupSignalHandler())
}
