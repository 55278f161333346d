package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"mirror-agent/internal/services/metadata"
)

func TestRun(t *testing.T) {
	t.Run("reports cluster id once the agent wrote its metadata", func(t *testing.T) {
		r := require.New(t)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		syncFile := filepath.Join(t.TempDir(), "metadata.json")
		clusterID := uuid.New().String()

		got := make(chan string, 1)
		done := make(chan error, 1)
		go func() {
			done <- Run(ctx, logrus.New(), syncFile, func(id string) { got <- id })
		}()

		time.Sleep(time.Second)
		meta := metadata.Metadata{ClusterID: clusterID, ProcessID: 123}
		r.NoError(meta.Save(syncFile))

		select {
		case id := <-got:
			r.Equal(clusterID, id)
		case <-ctx.Done():
			t.Fatal("cluster id was not reported")
		}

		cancel()
		r.NoError(<-done)
	})

	t.Run("requires a metadata file", func(t *testing.T) {
		require.Error(t, Run(context.Background(), logrus.New(), "", nil))
	})
}

func TestMonitor_observe(t *testing.T) {
	clusterID := uuid.New().String()

	cases := map[string]struct {
		updates        []metadata.Metadata
		expectMessages []string
		expectNotified []string
	}{
		"first metadata": {
			updates:        []metadata.Metadata{{ClusterID: clusterID, ProcessID: 1}},
			expectMessages: []string{"agent metadata found"},
			expectNotified: []string{clusterID},
		},
		"agent restart": {
			updates: []metadata.Metadata{
				{ClusterID: clusterID, ProcessID: 1},
				{ClusterID: clusterID, ProcessID: 2},
			},
			expectMessages: []string{"agent metadata found", "unexpected agent restart detected"},
			expectNotified: []string{clusterID},
		},
		"repeated write of the same metadata": {
			updates: []metadata.Metadata{
				{ClusterID: clusterID, ProcessID: 1},
				{ClusterID: clusterID, ProcessID: 1},
			},
			expectMessages: []string{"agent metadata found"},
			expectNotified: []string{clusterID},
		},
		"metadata without cluster id": {
			updates:        []metadata.Metadata{{ProcessID: 1}},
			expectMessages: []string{"agent metadata found"},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)
			log, hook := test.NewNullLogger()

			var notified []string
			m := monitor{log: log, clusterIDChanged: func(id string) { notified = append(notified, id) }}
			for _, md := range tc.updates {
				m.observe(md)
			}

			var messages []string
			for _, e := range hook.AllEntries() {
				messages = append(messages, e.Message)
			}
			r.Equal(tc.expectMessages, messages)
			r.Equal(tc.expectNotified, notified)
		})
	}
}
