package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Metadata is shared with sibling processes through a file once the agent knows the cluster id.
type Metadata struct {
	ClusterID string
	ProcessID uint64
	NodeName  string `json:",omitempty"`
}

// Save writes the metadata to file. An empty file name disables saving. The file is replaced atomically so readers
// never observe a partial write.
func (m *Metadata) Save(file string) error {
	if file == "" {
		return nil
	}

	contents, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(file), filepath.Base(file)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(contents); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	return os.Rename(tmp.Name(), file)
}

func (m *Metadata) Load(file string) error {
	contents, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	if err := json.Unmarshal(contents, m); err != nil {
		return fmt.Errorf("parsing json: %w", err)
	}
	return nil
}

// WatchForChanges emits the metadata found in file every time it changes, starting with its current contents if the
// file already exists. The channel is closed when ctx is done.
func WatchForChanges(ctx context.Context, log logrus.FieldLogger, file string) (<-chan Metadata, error) {
	if file == "" {
		return nil, errors.New("metadata file is not configured")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	// The directory is watched since the file is replaced by rename.
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(file), err)
	}

	updates := make(chan Metadata, 1)
	go func() {
		defer close(updates)
		defer func() {
			if err := watcher.Close(); err != nil {
				log.Warnf("closing metadata watcher: %v", err)
			}
		}()

		emit := func() {
			var m Metadata
			if err := m.Load(file); err != nil {
				log.Debugf("metadata not readable yet: %v", err)
				return
			}
			select {
			case updates <- m:
			case <-ctx.Done():
			}
		}

		if _, err := os.Stat(file); err == nil {
			emit()
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(file) {
					continue
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
					emit()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("metadata watcher error: %v", err)
			}
		}
	}()

	return updates, nil
}
