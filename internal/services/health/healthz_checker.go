package health

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
)

// HealthCheckHandler runs checks in name order and fails on the first failing one. With the verbose query parameter
// every check result is listed.
func HealthCheckHandler(checks map[string]healthz.Checker, log logrus.FieldLogger) http.HandlerFunc {
	names := lo.Keys(checks)
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		_, verbose := r.URL.Query()["verbose"]

		var report strings.Builder
		for _, name := range names {
			if err := checks[name](r); err != nil {
				log.WithField("check", name).Warnf("health check failed: %v", err)
				http.Error(w, report.String()+fmt.Sprintf("%s check failed: %v", name, err), http.StatusServiceUnavailable)
				return
			}
			if verbose {
				fmt.Fprintf(&report, "[+]%s ok\n", name)
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(report.String() + "ok"))
	}
}
