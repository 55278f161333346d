package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"

	"mirror-agent/internal/services/metrics"
)

var (
	ErrMisuse         = errors.New("handler misuse")
	ErrInvalidConfig  = errors.New("invalid handler configuration")
	ErrServerError    = errors.New("server reported a watch error")
	ErrStreamClosed   = errors.New("watch stream closed by server")
	ErrUnknownHandler = errors.New("unknown handler")
)

// Component applies normalized items of one resource kind to the cluster state.
type Component interface {
	Kind() string
	// Handle applies one item. It returns false for soft failures like deleting an unknown object, and an error
	// wrapping ErrMisuse only when it was called in a way that breaks its invariants.
	Handle(reason EventType, item *ResourceDelta) (bool, error)
	// Reconcile removes every object whose uid is not in live and returns the removed uids.
	Reconcile(live map[string]struct{}) []string
	Len() int
}

type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateListing
	StateWatching
	StateError
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateListing:
		return "LISTING"
	case StateWatching:
		return "WATCHING"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("ConnState(%d)", int32(s))
	}
}

// Observer is notified about connection state changes and applied lists of every handler.
type Observer interface {
	StateChanged(handler string, from, to ConnState)
	ListApplied(handler string, items int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, ConnState, ConnState) {}
func (nopObserver) ListApplied(string, int)                   {}

// Settings are the connection parameters shared by handlers.
type Settings struct {
	// Blocking disables the idle read timeout: reads wait until data arrives or the handler is stopped.
	Blocking     bool
	ReadTimeout  time.Duration
	ListTimeout  time.Duration
	Backoff      wait.Backoff
	MaxValueSize int
}

func DefaultSettings() Settings {
	return Settings{
		ReadTimeout: 5 * time.Minute,
		ListTimeout: time.Minute,
		Backoff: wait.Backoff{
			Duration: time.Second,
			Factor:   2,
			Jitter:   0.2,
			Steps:    math.MaxInt32,
			Cap:      time.Minute,
		},
		MaxValueSize: DefaultMaxValueSize,
	}
}

type Config struct {
	Name        string
	Path        string
	Query       url.Values
	StateFilter string
	EventFilter string
	// Dependency must complete its initial list before this handler connects.
	Dependency *Handler
	Settings
}

func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidConfig)
	}
	if c.Path == "" {
		return fmt.Errorf("%w: %s: path is empty", ErrInvalidConfig, c.Name)
	}
	if c.Backoff.Duration <= 0 {
		return fmt.Errorf("%w: %s: backoff duration must be positive", ErrInvalidConfig, c.Name)
	}
	return nil
}

// fatalError stops the handler instead of triggering a reconnect.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// Handler mirrors one resource kind: it lists, then watches, feeds every normalized item to its component and
// reconnects with backoff whenever the connection fails.
type Handler struct {
	log        logrus.FieldLogger
	cfg        Config
	source     Source
	component  Component
	normalizer *Normalizer
	gate       *Gate
	observer   Observer

	state atomic.Int32
}

func NewHandler(log logrus.FieldLogger, cfg Config, source Source, component Component) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: %s: source is nil", ErrInvalidConfig, cfg.Name)
	}
	if component == nil {
		return nil, fmt.Errorf("%w: %s: component is nil", ErrInvalidConfig, cfg.Name)
	}

	normalizer, err := NewNormalizer(cfg.StateFilter, cfg.EventFilter)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, cfg.Name, err)
	}

	return &Handler{
		log: log.WithFields(logrus.Fields{
			"handler": cfg.Name,
			"kind":    component.Kind(),
		}),
		cfg:        cfg,
		source:     source,
		component:  component,
		normalizer: normalizer,
		gate:       NewGate(),
		observer:   nopObserver{},
	}, nil
}

func (h *Handler) Name() string {
	return h.cfg.Name
}

func (h *Handler) Kind() string {
	return h.component.Kind()
}

func (h *Handler) Dependency() *Handler {
	return h.cfg.Dependency
}

// Synced reports whether the handler applied at least one full list.
func (h *Handler) Synced() bool {
	return h.gate.Completed()
}

func (h *Handler) Gate() *Gate {
	return h.gate
}

func (h *Handler) State() ConnState {
	return ConnState(h.state.Load())
}

func (h *Handler) setState(s ConnState) {
	prev := ConnState(h.state.Swap(int32(s)))
	if prev != s {
		h.observer.StateChanged(h.cfg.Name, prev, s)
	}
}

// Run keeps the handler connected until ctx is cancelled. It returns nil on cancellation and an error only when
// the handler hit a fatal condition. Stopping releases the handler's gate so dependents never wait forever.
func (h *Handler) Run(ctx context.Context) error {
	defer h.gate.Release()
	defer h.setState(StateDisconnected)

	if err := h.waitForDependency(ctx); err != nil {
		return nil
	}

	backoff := h.cfg.Backoff
	for {
		listed, err := h.connect(ctx)
		if ctx.Err() != nil {
			h.log.Info("stopping watch")
			return nil
		}

		var fatal *fatalError
		if errors.As(err, &fatal) {
			h.log.Errorf("stopping handler: %v", err)
			return fatal.err
		}

		if listed {
			backoff = h.cfg.Backoff
		}
		h.setState(StateError)
		delay := backoff.Step()
		h.log.Warnf("watch connection failed, reconnecting in %s: %v", delay, err)
		metrics.Reconnects.WithLabelValues(h.Kind()).Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func (h *Handler) waitForDependency(ctx context.Context) error {
	dep := h.cfg.Dependency
	if dep == nil {
		return nil
	}

	h.log.Infof("waiting for %q to complete its initial list", dep.Name())
	err := dep.gate.Wait(ctx)
	if errors.Is(err, ErrDependencyGone) {
		h.log.Warnf("%q stopped before completing its initial list, starting anyway", dep.Name())
		return nil
	}
	return err
}

// ListOnce fetches and applies one full list without watching.
func (h *Handler) ListOnce(ctx context.Context) error {
	defer h.setState(StateDisconnected)

	h.setState(StateConnecting)
	_, err := h.list(ctx, h.log)
	var fatal *fatalError
	if errors.As(err, &fatal) {
		return fatal.err
	}
	return err
}

// connect runs one connection attempt: LISTING followed by WATCHING. It reports whether the list phase
// succeeded.
func (h *Handler) connect(ctx context.Context) (bool, error) {
	log := h.log.WithField("connection_id", uuid.NewString())
	h.setState(StateConnecting)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resourceVersion, err := h.list(ctx, log)
	if err != nil {
		return false, err
	}

	h.setState(StateWatching)
	return true, h.watch(ctx, log, resourceVersion)
}

func (h *Handler) list(ctx context.Context, log logrus.FieldLogger) (string, error) {
	h.setState(StateListing)
	startedAt := time.Now()

	listCtx := ctx
	if h.cfg.ListTimeout > 0 {
		var cancel context.CancelFunc
		listCtx, cancel = context.WithTimeout(ctx, h.cfg.ListTimeout)
		defer cancel()
	}

	raw, err := h.source.List(listCtx, h.cfg.Path, h.cfg.Query)
	if err != nil {
		return "", err
	}

	ev, err := h.normalizer.State(raw)
	if err != nil {
		metrics.MalformedPayloads.WithLabelValues(h.Kind()).Inc()
		return "", fmt.Errorf("normalizing list: %w", err)
	}
	// The state filter always reports ADDED, anything else means the filter is not a state filter.
	if ev.Type != EventAdded {
		return "", &fatalError{fmt.Errorf("%w: state filter produced %s event", ErrInvalidConfig, ev.Type)}
	}

	if err := h.apply(log, ev); err != nil {
		return "", err
	}

	// Skipped items have no known uid, pruning now could drop objects that still exist.
	if len(ev.Skipped) > 0 {
		log.WithField("skipped", len(ev.Skipped)).Warnf("list had malformed items, not pruning stale objects")
	} else {
		live := make(map[string]struct{}, len(ev.Items))
		for _, item := range ev.Items {
			live[item.UID] = struct{}{}
		}
		if removed := h.component.Reconcile(live); len(removed) > 0 {
			log.WithField("removed", len(removed)).Infof("pruned objects missing from the full list")
			metrics.StoreObjects.WithLabelValues(h.Kind()).Set(float64(h.component.Len()))
		}
	}

	if !h.gate.Completed() {
		log.Infof("initial list applied: %d items in %v", len(ev.Items), time.Since(startedAt))
	} else {
		log.Debugf("list applied: %d items in %v", len(ev.Items), time.Since(startedAt))
	}
	h.gate.Complete()
	metrics.ListDuration.WithLabelValues(h.Kind()).Observe(time.Since(startedAt).Seconds())
	h.observer.ListApplied(h.cfg.Name, len(ev.Items))

	return ev.ResourceVersion, nil
}

func (h *Handler) watch(ctx context.Context, log logrus.FieldLogger, resourceVersion string) error {
	body, err := h.source.Watch(ctx, h.cfg.Path, h.cfg.Query, resourceVersion)
	if err != nil {
		return err
	}

	var rc io.ReadCloser = body
	if !h.cfg.Blocking && h.cfg.ReadTimeout > 0 {
		rc = newIdleTimeoutReader(body, h.cfg.ReadTimeout)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			log.Debugf("closing watch body: %v", err)
		}
	}()

	log.Debugf("watching from resource version %q", resourceVersion)

	framer := NewFramer(rc, h.cfg.MaxValueSize)
	for {
		raw, err := framer.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamClosed
			}
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) || errors.Is(err, ErrValueTooLarge) {
				metrics.MalformedPayloads.WithLabelValues(h.Kind()).Inc()
			}
			return fmt.Errorf("reading watch stream: %w", err)
		}

		ev, err := h.normalizer.Event(raw)
		if err != nil {
			log.Warnf("skipping watch event: %v", err)
			metrics.MalformedPayloads.WithLabelValues(h.Kind()).Inc()
			continue
		}

		if err := h.apply(log, ev); err != nil {
			return err
		}

		if ev.Type == EventError {
			return fmt.Errorf("%w: %s", ErrServerError, ev.Message)
		}
	}
}

// apply dispatches every item of ev in order. Only misuse errors are returned, soft failures are counted.
func (h *Handler) apply(log logrus.FieldLogger, ev *WatchEvent) error {
	kind := h.Kind()
	metrics.WatchReceived.WithLabelValues(kind, string(ev.Type)).Inc()

	for _, err := range ev.Skipped {
		log.WithField("reason", ev.Type).Warnf("skipping malformed item: %v", err)
		metrics.MalformedPayloads.WithLabelValues(kind).Inc()
	}

	for i := range ev.Items {
		item := &ev.Items[i]
		ok, err := h.component.Handle(ev.Type, item)
		if err != nil {
			return &fatalError{fmt.Errorf("handling %s %s (%s): %w", ev.Type, item.Name, item.UID, err)}
		}
		if !ok {
			metrics.DispatchFailures.WithLabelValues(kind, string(ev.Type)).Inc()
		}
	}

	metrics.StoreObjects.WithLabelValues(kind).Set(float64(h.component.Len()))
	return nil
}
