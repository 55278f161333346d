//go:generate mockgen -destination ./mock/source.go . Source
package watch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/rest"
)

const (
	defaultListRetryCount = 3
	headerAccept          = "Accept"
	mimeJSON              = "application/json"
	maxErrorBodySize      = 4 << 10
)

// Source is the capability to fetch cluster state for one API path: a one-shot list and a long-lived watch.
type Source interface {
	// List returns the full list document for path.
	List(ctx context.Context, path string, query url.Values) ([]byte, error)
	// Watch opens a watch on path starting after resourceVersion. The returned body streams concatenated watch
	// events until the server closes it or ctx is cancelled.
	Watch(ctx context.Context, path string, query url.Values, resourceVersion string) (io.ReadCloser, error)
}

type HTTPOptions struct {
	// HTTPVersion forces HTTP/1.1 when set to "1.1". Any other value lets the transport negotiate.
	HTTPVersion string
}

// HTTPSource talks to the API server using the TLS and authentication settings of a rest.Config. Lists go through
// resty to get retries, watches use the raw http.Client since the response body has to be streamed.
type HTTPSource struct {
	log   logrus.FieldLogger
	host  string
	rest  *resty.Client
	watch *http.Client
}

func NewHTTPSource(log logrus.FieldLogger, cfg *rest.Config, opts HTTPOptions) (*HTTPSource, error) {
	if cfg == nil {
		return nil, errors.New("rest config is nil")
	}
	cfg = rest.CopyConfig(cfg)
	if opts.HTTPVersion == "1.1" {
		cfg.TLSClientConfig.NextProtos = []string{"http/1.1"}
	}

	httpClient, err := rest.HTTPClientFor(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating http client: %w", err)
	}

	host := strings.TrimSuffix(cfg.Host, "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}

	restyClient := resty.NewWithClient(&http.Client{
		Transport: httpClient.Transport,
		Timeout:   httpClient.Timeout,
	})
	restyClient.SetBaseURL(host)
	restyClient.SetRetryCount(defaultListRetryCount)
	restyClient.SetHeader(headerAccept, mimeJSON)

	return &HTTPSource{
		log:  log,
		host: host,
		rest: restyClient,
		watch: &http.Client{
			Transport: httpClient.Transport,
		},
	}, nil
}

func (s *HTTPSource) List(ctx context.Context, path string, query url.Values) ([]byte, error) {
	resp, err := s.rest.R().
		SetContext(ctx).
		SetQueryParamsFromValues(query).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("listing %s: unexpected status %d: %s", path, resp.StatusCode(), truncate(resp.Body()))
	}
	return resp.Body(), nil
}

func (s *HTTPSource) Watch(ctx context.Context, path string, query url.Values, resourceVersion string) (io.ReadCloser, error) {
	uri, err := url.Parse(s.host + path)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	uri.RawQuery = watchQuery(query, resourceVersion).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating watch request: %w", err)
	}
	req.Header.Set(headerAccept, mimeJSON)

	resp, err := s.watch.Do(req)
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			if err := resp.Body.Close(); err != nil {
				s.log.Errorf("closing response body: %v", err)
			}
		}()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, fmt.Errorf("watching %s: unexpected status %d: %s", path, resp.StatusCode, truncate(body))
	}
	return resp.Body, nil
}

func watchQuery(query url.Values, resourceVersion string) url.Values {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set("watch", "true")
	if resourceVersion != "" {
		q.Set("resourceVersion", resourceVersion)
	}
	return q
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodySize {
		body = body[:maxErrorBodySize]
	}
	return strings.TrimSpace(string(body))
}

const emptyList = `{"kind":"List","apiVersion":"v1","metadata":{},"items":[]}`

// StaticSource serves fixed documents instead of talking to a server. Paths without a configured list return an
// empty list. A watch replays the configured events once and then stays open until ctx is cancelled. It is meant
// for tests and for replaying recorded documents offline.
type StaticSource struct {
	mu     sync.Mutex
	lists  map[string][]byte
	events map[string][]byte
}

func NewStaticSource() *StaticSource {
	return &StaticSource{
		lists:  map[string][]byte{},
		events: map[string][]byte{},
	}
}

func (s *StaticSource) SetList(path string, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists[path] = doc
}

func (s *StaticSource) SetEvents(path string, stream []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[path] = stream
}

func (s *StaticSource) List(_ context.Context, path string, _ url.Values) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc, ok := s.lists[path]; ok {
		return doc, nil
	}
	return []byte(emptyList), nil
}

func (s *StaticSource) Watch(ctx context.Context, path string, _ url.Values, _ string) (io.ReadCloser, error) {
	s.mu.Lock()
	stream := s.events[path]
	s.mu.Unlock()

	return &replayBody{ctx: ctx, r: bytes.NewReader(stream)}, nil
}

// replayBody returns the recorded stream and then blocks like an idle watch until ctx is done or it is closed.
type replayBody struct {
	ctx    context.Context
	r      *bytes.Reader
	once   sync.Once
	closed chan struct{}
	mu     sync.Mutex
}

func (b *replayBody) init() {
	b.once.Do(func() {
		b.closed = make(chan struct{})
	})
}

func (b *replayBody) Read(p []byte) (int, error) {
	b.init()
	b.mu.Lock()
	n, err := b.r.Read(p)
	b.mu.Unlock()
	if n > 0 || !errors.Is(err, io.EOF) {
		return n, err
	}

	select {
	case <-b.ctx.Done():
		return 0, b.ctx.Err()
	case <-b.closed:
		return 0, io.ErrClosedPipe
	}
}

func (b *replayBody) Close() error {
	b.init()
	b.mu.Lock()
	defer b.mu.Unlock()
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

// idleTimeoutReader closes the underlying body when no data arrived within timeout, turning a silent connection
// into a read error.
type idleTimeoutReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer

	mu       sync.Mutex
	timedOut bool
}

var ErrReadTimeout = errors.New("watch read timed out")

func newIdleTimeoutReader(rc io.ReadCloser, timeout time.Duration) *idleTimeoutReader {
	r := &idleTimeoutReader{rc: rc, timeout: timeout}
	r.timer = time.AfterFunc(timeout, r.expire)
	return r
}

func (r *idleTimeoutReader) expire() {
	r.mu.Lock()
	r.timedOut = true
	r.mu.Unlock()
	_ = r.rc.Close()
}

func (r *idleTimeoutReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	r.mu.Lock()
	timedOut := r.timedOut
	r.mu.Unlock()
	if timedOut {
		return n, ErrReadTimeout
	}
	if n > 0 {
		r.timer.Reset(r.timeout)
	}
	return n, err
}

func (r *idleTimeoutReader) Close() error {
	r.timer.Stop()
	return r.rc.Close()
}
