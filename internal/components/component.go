package components

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
)

var (
	ErrNilItem        = fmt.Errorf("%w: nil item", watch.ErrMisuse)
	ErrNilStore       = fmt.Errorf("%w: nil store", watch.ErrMisuse)
	ErrInvalidOptions = errors.New("invalid component options")
)

// Options control how the namespace component treats the cluster id.
type Options struct {
	// SetClusterID records the uid of the "default" namespace as the cluster id.
	SetClusterID bool
	// ClusterIDOnly skips every store mutation except the cluster id.
	ClusterIDOnly bool
}

func (o Options) Validate() error {
	if o.ClusterIDOnly && !o.SetClusterID {
		return fmt.Errorf("%w: cluster id only mode requires setting the cluster id", ErrInvalidOptions)
	}
	return nil
}

func itemLogger(log logrus.FieldLogger, reason watch.EventType, item *watch.ResourceDelta) logrus.FieldLogger {
	return log.WithFields(logrus.Fields{
		"reason": reason,
		"name":   item.Name,
		"uid":    item.UID,
	})
}

// applyMeta copies the common attributes of item onto m. An empty label set leaves the stored labels untouched.
func applyMeta(m *state.Meta, item *watch.ResourceDelta) {
	if item.Timestamp != "" {
		m.CreatedAt = item.Timestamp
	}
	if len(item.Labels) > 0 {
		labels := make(map[string]string, len(item.Labels))
		for k, v := range item.Labels {
			labels[k] = v
		}
		m.Labels = labels
	}
}
