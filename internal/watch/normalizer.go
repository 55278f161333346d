package watch

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/itchyny/gojq"
)

var errNoOutput = errors.New("filter produced no output")

// Filter is a compiled jq expression.
type Filter struct {
	expr string
	code *gojq.Code
}

func CompileFilter(expr string) (*Filter, error) {
	q, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parsing filter: %w", err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}
	return &Filter{expr: expr, code: code}, nil
}

func (f *Filter) String() string {
	return f.expr
}

// Run evaluates the filter against input and returns its first output.
func (f *Filter) Run(input any) (any, error) {
	iter := f.code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return nil, errNoOutput
	}
	if err, ok := v.(error); ok {
		return nil, err
	}
	return v, nil
}

// Normalizer turns full list responses and single watch events into WatchEvent values of the same shape, so that
// initial state and live deltas are dispatched the same way.
type Normalizer struct {
	state *Filter
	event *Filter
}

func NewNormalizer(stateExpr, eventExpr string) (*Normalizer, error) {
	state, err := CompileFilter(stateExpr)
	if err != nil {
		return nil, fmt.Errorf("state filter: %w", err)
	}
	event, err := CompileFilter(eventExpr)
	if err != nil {
		return nil, fmt.Errorf("event filter: %w", err)
	}
	return &Normalizer{state: state, event: event}, nil
}

// State normalizes a full list response into a single ADDED event carrying every listed object.
func (n *Normalizer) State(raw []byte) (*WatchEvent, error) {
	return normalize(n.state, raw)
}

// Event normalizes one watch event into a WatchEvent with at most one item.
func (n *Normalizer) Event(raw []byte) (*WatchEvent, error) {
	return normalize(n.event, raw)
}

// normalize never returns a nil event. An error means the document as a whole was unusable; problems with
// individual items are collected in WatchEvent.Skipped.
func normalize(f *Filter, raw []byte) (*WatchEvent, error) {
	ev := &WatchEvent{Type: EventUnknown}

	var input any
	if err := json.Unmarshal(raw, &input); err != nil {
		return ev, fmt.Errorf("%w: decoding json: %v", ErrMalformedPayload, err)
	}

	out, err := f.Run(input)
	if err != nil {
		return ev, fmt.Errorf("%w: applying filter: %v", ErrMalformedPayload, err)
	}

	doc, ok := out.(map[string]any)
	if !ok {
		return ev, fmt.Errorf("%w: filter produced %T instead of an object", ErrMalformedPayload, out)
	}

	ev.Type = ParseEventType(stringField(doc, "type"))
	ev.APIVersion = stringField(doc, "apiVersion")
	ev.Kind = stringField(doc, "kind")
	ev.ResourceVersion = stringField(doc, "resourceVersion")
	if ev.Type == EventError {
		ev.Message = statusMessage(input)
	}

	items, _ := doc["items"].([]any)
	for i, v := range items {
		d, err := decodeDelta(v)
		if err != nil {
			ev.Skipped = append(ev.Skipped, fmt.Errorf("item %d: %w", i, err))
			continue
		}
		ev.Items = append(ev.Items, *d)
	}

	return ev, nil
}

func stringField(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

// statusMessage extracts the message of the Status object the server sends along with ERROR events.
func statusMessage(input any) string {
	doc, ok := input.(map[string]any)
	if !ok {
		return ""
	}
	obj, ok := doc["object"].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(obj, "message")
}
