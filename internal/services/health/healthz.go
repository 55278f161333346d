package health

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"mirror-agent/internal/watch"
)

var _ watch.Observer = (*HealthzProvider)(nil)

type Option func(*HealthzProvider)

func WithClock(c clock.PassiveClock) Option {
	return func(h *HealthzProvider) {
		h.clock = c
	}
}

// NewHealthzProvider tracks the connection state of watch handlers. unhealthyLimit bounds both the time a handler may
// spend without a WATCHING connection and the time the initial lists may take.
func NewHealthzProvider(log logrus.FieldLogger, unhealthyLimit time.Duration, opts ...Option) *HealthzProvider {
	h := &HealthzProvider{
		log:             log,
		clock:           clock.RealClock{},
		unhealthyLimit:  unhealthyLimit,
		initHardTimeout: unhealthyLimit,
		handlers:        map[string]*handlerHealth{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type HealthzProvider struct {
	log             logrus.FieldLogger
	clock           clock.PassiveClock
	unhealthyLimit  time.Duration
	initHardTimeout time.Duration

	initializeStartedAt *time.Time
	firstSyncedAt       *time.Time
	handlers            map[string]*handlerHealth

	healthMu sync.Mutex
}

type handlerHealth struct {
	state watch.ConnState
	// since is when the handler entered its current state.
	since  time.Time
	synced bool
}

// Initializing registers the handlers that have to sync before the agent is ready and starts the initialization
// timeout.
func (h *HealthzProvider) Initializing(handlers ...string) {
	h.healthMu.Lock()
	defer h.healthMu.Unlock()

	now := h.clock.Now()
	h.initializeStartedAt = lo.ToPtr(now)
	h.firstSyncedAt = nil
	h.handlers = make(map[string]*handlerHealth, len(handlers))
	for _, name := range handlers {
		h.handlers[name] = &handlerHealth{state: watch.StateDisconnected, since: now}
	}
}

func (h *HealthzProvider) StateChanged(handler string, _, to watch.ConnState) {
	h.healthMu.Lock()
	defer h.healthMu.Unlock()

	hh := h.handler(handler)
	hh.state = to
	hh.since = h.clock.Now()
}

func (h *HealthzProvider) ListApplied(handler string, _ int) {
	h.healthMu.Lock()
	defer h.healthMu.Unlock()

	h.handler(handler).synced = true
	if h.firstSyncedAt == nil && lo.EveryBy(lo.Values(h.handlers), func(hh *handlerHealth) bool { return hh.synced }) {
		h.firstSyncedAt = lo.ToPtr(h.clock.Now())
		h.initializeStartedAt = nil
		h.log.Info("all handlers applied their initial list")
	}
}

func (h *HealthzProvider) handler(name string) *handlerHealth {
	hh, ok := h.handlers[name]
	if !ok {
		hh = &handlerHealth{state: watch.StateDisconnected, since: h.clock.Now()}
		h.handlers[name] = hh
	}
	return hh
}

// CheckReadiness passes once every handler applied its initial list.
func (h *HealthzProvider) CheckReadiness(_ *http.Request) error {
	h.healthMu.Lock()
	defer h.healthMu.Unlock()

	if h.initializeStartedAt == nil && h.firstSyncedAt == nil {
		return fmt.Errorf("watch initialization not started")
	}

	unsynced := h.filter(func(hh *handlerHealth) bool { return !hh.synced })
	if len(unsynced) > 0 {
		return fmt.Errorf("handlers without initial list: %s", strings.Join(unsynced, ", "))
	}
	return nil
}

// CheckLiveness passes while the handlers initialize within the timeout, and afterwards as long as no handler stays
// disconnected from its watch for longer than the limit. Handlers that stopped for good are not counted.
func (h *HealthzProvider) CheckLiveness(_ *http.Request) error {
	h.healthMu.Lock()
	defer h.healthMu.Unlock()

	if h.firstSyncedAt == nil {
		if h.initializeStartedAt == nil {
			return fmt.Errorf("watch initialization not started")
		}
		if since := h.clock.Since(*h.initializeStartedAt); since > h.initHardTimeout {
			return fmt.Errorf("watch initialization exceeded hard timeout of %s", h.initHardTimeout)
		}
		return nil
	}

	stuck := h.filter(func(hh *handlerHealth) bool {
		switch hh.state {
		case watch.StateWatching, watch.StateDisconnected:
			return false
		default:
			return h.clock.Since(hh.since) > h.unhealthyLimit
		}
	})
	if len(stuck) > 0 {
		return fmt.Errorf("handlers reconnecting for over the healthy limit of %s: %s", h.unhealthyLimit, strings.Join(stuck, ", "))
	}
	return nil
}

// CheckStartup passes once all handlers synced for the first time, or while the first initialization is within the
// timeout.
func (h *HealthzProvider) CheckStartup(r *http.Request) error {
	h.healthMu.Lock()
	synced := h.firstSyncedAt != nil
	h.healthMu.Unlock()

	if synced {
		return nil
	}
	return h.CheckLiveness(r)
}

func (h *HealthzProvider) filter(pred func(hh *handlerHealth) bool) []string {
	var names []string
	for name, hh := range h.handlers {
		if pred(hh) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
