package log

import (
	"sync"

	"github.com/sirupsen/logrus"

	"mirror-agent/internal/services/metrics"
)

const FieldClusterID = "cluster_id"

type Hook interface {
	logrus.Hook
	SetClusterID(id string)
}

// SetupHook installs a hook on logger that stamps every entry with the mirrored cluster id once it is known and
// counts entries per level.
func SetupHook(logger *logrus.Logger) Hook {
	h := newHook()
	logger.AddHook(h)
	return h
}

func newHook() *hook {
	return &hook{}
}

type hook struct {
	mu        sync.RWMutex
	clusterID string
}

func (h *hook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *hook) SetClusterID(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clusterID = id
}

func (h *hook) Fire(entry *logrus.Entry) error {
	metrics.LogEntries.WithLabelValues(entry.Level.String()).Inc()

	h.mu.RLock()
	id := h.clusterID
	h.mu.RUnlock()

	if id == "" {
		return nil
	}
	if _, ok := entry.Data[FieldClusterID]; !ok {
		entry.Data[FieldClusterID] = id
	}
	return nil
}
