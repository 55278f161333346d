package utils

import (
	"k8s.io/apimachinery/pkg/util/wait"

	"mirror-agent/internal/components"
	"mirror-agent/internal/config"
	"mirror-agent/internal/watch"
)

// BuildConfig maps the agent configuration onto handler settings.
func BuildConfig(cfg config.Config) components.BuildConfig {
	settings := watch.DefaultSettings()
	settings.Blocking = cfg.Watch.Blocking
	settings.ReadTimeout = cfg.Watch.ReadTimeout
	settings.ListTimeout = cfg.Watch.ListTimeout
	settings.Backoff = wait.Backoff{
		Duration: cfg.Watch.Backoff.Initial,
		Factor:   cfg.Watch.Backoff.Factor,
		Jitter:   cfg.Watch.Backoff.Jitter,
		Steps:    settings.Backoff.Steps,
		Cap:      cfg.Watch.Backoff.Max,
	}

	return components.BuildConfig{
		Kinds:    cfg.Watch.Kinds,
		NodeName: cfg.NodeName,
		Options: components.Options{
			SetClusterID:  cfg.ClusterID.Set,
			ClusterIDOnly: cfg.ClusterID.Only,
		},
		Settings: settings,
	}
}
