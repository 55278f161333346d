package watch

import (
	"errors"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"k8s.io/apimachinery/pkg/watch"
)

type EventType string

const (
	EventAdded    = EventType(watch.Added)
	EventModified = EventType(watch.Modified)
	EventDeleted  = EventType(watch.Deleted)
	EventError    = EventType(watch.Error)
	EventUnknown  = EventType("UNKNOWN")
)

// ParseEventType maps a server reported event type to one of the known types. Anything unrecognised, bookmarks
// included, becomes EventUnknown.
func ParseEventType(s string) EventType {
	switch t := EventType(s); t {
	case EventAdded, EventModified, EventDeleted, EventError:
		return t
	default:
		return EventUnknown
	}
}

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing required field")
)

// ResourceDelta is one normalized object taken from a list response or a watch event. Kind specific attributes
// produced by the filters end up in Extra.
type ResourceDelta struct {
	Name      string            `mapstructure:"name"`
	UID       string            `mapstructure:"uid"`
	Timestamp string            `mapstructure:"timestamp"`
	Labels    map[string]string `mapstructure:"labels"`
	Extra     map[string]any    `mapstructure:",remain"`
}

// DecodeExtra decodes the kind specific attributes of the delta into out.
func (d *ResourceDelta) DecodeExtra(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(d.Extra); err != nil {
		return fmt.Errorf("decoding %s attributes: %w", d.UID, err)
	}
	return nil
}

func decodeDelta(v any) (*ResourceDelta, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object but got %T", v)
	}

	var d ResourceDelta
	if err := mapstructure.Decode(m, &d); err != nil {
		return nil, err
	}
	if d.Name == "" {
		return nil, fmt.Errorf("%w: name", ErrMissingField)
	}
	if d.UID == "" {
		return nil, fmt.Errorf("%w: uid of %q", ErrMissingField, d.Name)
	}
	return &d, nil
}

// WatchEvent is the canonical shape both the state and the event filters produce. Items that could not be decoded
// are reported in Skipped instead of failing the whole event.
type WatchEvent struct {
	Type            EventType
	APIVersion      string
	Kind            string
	ResourceVersion string
	Message         string
	Items           []ResourceDelta
	Skipped         []error
}
