package health

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
)

func TestHealthCheckHandler(t *testing.T) {
	cases := map[string]struct {
		checks     map[string]healthz.Checker
		query      string
		wantStatus int
		wantBody   string
	}{
		"all checks pass": {
			checks: map[string]healthz.Checker{
				"check1": func(_ *http.Request) error { return nil },
				"check2": func(_ *http.Request) error { return nil },
			},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		"one check fails": {
			checks: map[string]healthz.Checker{
				"check1": func(_ *http.Request) error { return nil },
				"check2": func(_ *http.Request) error { return fmt.Errorf("fail") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "check2 check failed: fail\n",
		},
		"first failing check in name order is reported": {
			checks: map[string]healthz.Checker{
				"b": func(_ *http.Request) error { return fmt.Errorf("fail b") },
				"a": func(_ *http.Request) error { return fmt.Errorf("fail a") },
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "a check failed: fail a\n",
		},
		"verbose lists passed checks": {
			checks: map[string]healthz.Checker{
				"watch": func(_ *http.Request) error { return nil },
				"ping":  func(_ *http.Request) error { return nil },
			},
			query:      "?verbose",
			wantStatus: http.StatusOK,
			wantBody:   "[+]ping ok\n[+]watch ok\nok",
		},
		"nil checks map": {
			checks:     nil,
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := require.New(t)
			log, _ := test.NewNullLogger()

			rec := httptest.NewRecorder()
			HealthCheckHandler(tc.checks, log)(rec, httptest.NewRequest(http.MethodGet, "/healthz"+tc.query, nil))

			r.Equal(tc.wantStatus, rec.Code)
			r.Equal(tc.wantBody, rec.Body.String())
		})
	}
}
