package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"mirror-agent/internal/services/metadata"
)

// Run follows the metadata file written by the agent. It blocks until the first metadata is available, reports the
// cluster id through clusterIDChanged and then logs agent restarts until ctx is done.
func Run(ctx context.Context, log logrus.FieldLogger, file string, clusterIDChanged func(clusterID string)) error {
	if file == "" {
		return fmt.Errorf("metadata file is not configured")
	}

	if err := os.MkdirAll(filepath.Dir(file), 0700); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}

	updates, err := metadata.WatchForChanges(ctx, log, file)
	if err != nil {
		return fmt.Errorf("watching metadata: %w", err)
	}

	m := monitor{log: log, clusterIDChanged: clusterIDChanged}

	log.Infof("waiting for agent metadata in %s", file)
	for {
		select {
		case <-ctx.Done():
			return nil
		case md, ok := <-updates:
			if !ok {
				return nil
			}
			m.observe(md)
		}
	}
}

type monitor struct {
	log              logrus.FieldLogger
	clusterIDChanged func(clusterID string)
	metadata         *metadata.Metadata
}

func (m *monitor) observe(md metadata.Metadata) {
	prev := m.metadata
	m.metadata = &md

	if prev == nil {
		m.log.WithField("process_id", md.ProcessID).Infof("agent metadata found")
		m.notify(md.ClusterID)
		return
	}

	if prev.ProcessID != md.ProcessID {
		m.log.WithFields(logrus.Fields{
			"previous_process_id": prev.ProcessID,
			"process_id":          md.ProcessID,
		}).Warn("unexpected agent restart detected")
	}

	if prev.ClusterID != md.ClusterID {
		m.log.Warnf("cluster id changed from %q to %q", prev.ClusterID, md.ClusterID)
		m.notify(md.ClusterID)
	}
}

func (m *monitor) notify(clusterID string) {
	if clusterID != "" && m.clusterIDChanged != nil {
		m.clusterIDChanged(clusterID)
	}
}
