package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	runtimedebug "runtime/debug"

	"github.com/KimMachineGun/automemlimit/memlimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"k8s.io/client-go/kubernetes"
	"k8s.io/component-base/metrics/legacyregistry"
	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"mirror-agent/cmd/utils"
	"mirror-agent/cmd/utils/shutdown"
	"mirror-agent/internal/components"
	"mirror-agent/internal/config"
	"mirror-agent/internal/services/health"
	"mirror-agent/internal/services/memorypressure"
	"mirror-agent/internal/services/metadata"
	"mirror-agent/internal/services/metrics"
	"mirror-agent/internal/services/version"
	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
	mirrorlog "mirror-agent/pkg/log"
)

const memLimitRatio = 0.9

func run(ctx context.Context) error {
	cfg := config.Get()

	logger := utils.NewLogger(cfg.Log.Level)
	logHook := mirrorlog.SetupHook(logger)
	log := logger.WithField("version", config.VersionInfo.Version)
	if podName := os.Getenv("SELF_POD_NAME"); podName != "" {
		log = log.WithField("component_pod_name", podName)
	}
	if cfg.NodeName != "" {
		log = log.WithField("component_node_name", cfg.NodeName)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	if limit, err := memlimit.SetGoMemLimitWithOpts(
		memlimit.WithRatio(memLimitRatio),
		memlimit.WithProvider(memlimit.ApplyFallback(memlimit.FromCgroup, memlimit.FromSystem)),
	); err != nil {
		log.Warnf("setting memory limit: %v", err)
	} else {
		log.Debugf("memory limit set to %d bytes", limit)
	}

	err := runAgentMode(ctx, log, cfg, func(clusterID string) {
		logHook.SetClusterID(clusterID)
	})
	if err != nil {
		log.Error(err)
	}
	return err
}

func runAgentMode(parentCtx context.Context, log *logrus.Entry, cfg config.Config, clusterIDChanged func(clusterID string)) error {
	ctx, shutdownController := shutdown.Context(parentCtx, log)
	defer shutdownController.For("runAgentMode")(nil)

	log.Infof("running agent version: %v", config.VersionInfo)

	if cfg.PprofPort != 0 {
		closePprof := runPProf(cfg, log, shutdownController.For("pprof server"))
		defer closePprof()
	}

	ctrlHealthz := health.NewHealthzProvider(log, cfg.HealthyEventIntervalLimit)
	checks := map[string]healthz.Checker{
		"ping": healthz.Ping,
	}
	readinessChecks := lo.Assign(checks, map[string]healthz.Checker{
		"readiness": ctrlHealthz.CheckReadiness,
	})
	livenessChecks := lo.Assign(checks, map[string]healthz.Checker{
		"liveness": ctrlHealthz.CheckLiveness,
	})
	startupChecks := lo.Assign(checks, map[string]healthz.Checker{
		"startup": ctrlHealthz.CheckStartup,
	})

	closeHealthz := runHealthzEndpoints(cfg, log, livenessChecks, readinessChecks, startupChecks, shutdownController.For("healthz server"))
	defer closeHealthz()

	closeMetrics := runMetricsEndpoints(cfg, log, shutdownController.For("metrics server"))
	defer closeMetrics()

	restconfig, err := cfg.RetrieveKubeConfig(log)
	if err != nil {
		return err
	}
	if restconfig == nil {
		return fmt.Errorf("kubeconfig is nil")
	}
	restconfig.UserAgent = config.VersionInfo.UserAgent()
	log.Infof("API server: %s", restconfig.Host)

	clientset, err := kubernetes.NewForConfig(restconfig)
	if err != nil {
		return fmt.Errorf("initializing clientset: %w", err)
	}
	if v, err := version.Get(log, clientset.Discovery()); err != nil {
		log.Warnf("getting kubernetes version: %v", err)
	} else {
		log = log.WithField("k8s_version", v.Full())
	}

	store := state.New()
	store.OnClusterID(func(clusterID string) {
		clusterIDChanged(clusterID)
		if err := saveMetadata(clusterID, cfg); err != nil {
			log.Warnf("saving metadata: %v", err)
		}
	})

	source, err := watch.NewHTTPSource(log, restconfig, watch.HTTPOptions{HTTPVersion: cfg.API.HTTPVersion})
	if err != nil {
		return fmt.Errorf("creating source: %w", err)
	}

	handlers, err := components.Build(log, store, source, utils.BuildConfig(cfg))
	if err != nil {
		return fmt.Errorf("building handlers: %w", err)
	}

	engine, err := watch.NewEngine(log, handlers, watch.WithObserver(ctrlHealthz), watch.WithFailFast(cfg.Watch.FailFast))
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	ctrlHealthz.Initializing(lo.Map(engine.Handlers(), func(h *watch.Handler, _ int) string {
		return h.Name()
	})...)

	go shutdown.RunThenTrigger(shutdownController.For("engine"), false, func() error {
		return engine.Run(ctx)
	})

	mp := memorypressure.MemoryPressure{Interval: cfg.MemoryPressureInterval, Log: log}
	go mp.OnMemoryPressure(ctx, func() {
		log.WithFields(storeSizes(store)).Info("mirrored objects under memory pressure")
		runtimedebug.FreeOSMemory()
	})

	<-ctx.Done()
	log.Info("shutdown signal received, initiating graceful shutdown")

	return shutdownController.Err()
}

func runPProf(cfg config.Config, log *logrus.Entry, startShutdown func(error)) (closeFunc func()) {
	log.Infof("starting pprof server on port: %d", cfg.PprofPort)
	addr := portToServerAddr(cfg.PprofPort)
	pprofSrv := &http.Server{Addr: addr, Handler: http.DefaultServeMux}
	closeFn := func() {
		log.Infof("closing pprof server")
		if err := pprofSrv.Close(); err != nil {
			log.Errorf("closing pprof server: %v", err)
		}
	}

	go shutdown.RunThenTrigger(startShutdown, true, func() error {
		log.Info("pprof server ready")
		err := pprofSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		log.Warn("pprof server closed")
		return err
	})
	return closeFn
}

func runHealthzEndpoints(
	cfg config.Config,
	log *logrus.Entry,
	livenessChecks map[string]healthz.Checker,
	readinessChecks map[string]healthz.Checker,
	startupChecks map[string]healthz.Checker,
	startShutdown func(error),
) func() {
	log.Infof("starting healthz server on port: %d", cfg.HealthzPort)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HealthCheckHandler(livenessChecks, log))
	mux.HandleFunc("/readyz", health.HealthCheckHandler(readinessChecks, log))
	mux.HandleFunc("/startupz", health.HealthCheckHandler(startupChecks, log))

	addr := portToServerAddr(cfg.HealthzPort)
	healthzSrv := &http.Server{Addr: addr, Handler: mux}
	closeFunc := func() {
		log.Infof("closing healthz server")
		if err := healthzSrv.Close(); err != nil {
			log.Errorf("closing healthz server: %v", err)
		}
	}

	go shutdown.RunThenTrigger(startShutdown, true, func() error {
		log.Info("healthz server ready")
		err := healthzSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		log.Warn("healthz server closed")
		return err
	})
	return closeFunc
}

func runMetricsEndpoints(cfg config.Config, log *logrus.Entry, startShutdown func(error)) func() {
	log.Infof("starting metrics server on port: %d", cfg.MetricsPort)
	addr := portToServerAddr(cfg.MetricsPort)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler(log))

	metricsSrv := &http.Server{Addr: addr, Handler: metricsMux}
	closeFunc := func() {
		log.Infof("closing metrics server")
		if err := metricsSrv.Close(); err != nil {
			log.Errorf("closing metrics server: %v", err)
		}
	}

	go shutdown.RunThenTrigger(startShutdown, true, func() error {
		log.Info("metrics server ready")
		err := metricsSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		log.Warn("metrics server closed")
		return err
	})
	return closeFunc
}

func metricsHandler(log logrus.FieldLogger) http.Handler {
	gatherer := prometheus.Gatherers{
		legacyregistry.DefaultGatherer,
		metrics.Registry,
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: log,
	})
}

func storeSizes(store *state.Store) logrus.Fields {
	fields := logrus.Fields{}
	for _, kind := range store.Kinds() {
		if table, err := store.Table(kind); err == nil {
			fields[kind] = table.Len()
		}
	}
	return fields
}

func portToServerAddr(port int) string {
	return fmt.Sprintf(":%d", port)
}

func saveMetadata(clusterID string, cfg config.Config) error {
	if cfg.MetadataFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.MetadataFile), 0700); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	m := metadata.Metadata{
		ClusterID: clusterID,
		ProcessID: uint64(os.Getpid()),
		NodeName:  cfg.NodeName,
	}
	if err := m.Save(cfg.MetadataFile); err != nil {
		return fmt.Errorf("saving metadata: %w", err)
	}
	return nil
}
