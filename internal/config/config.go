package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

type Config struct {
	Log        Log    `mapstructure:"log"`
	Kubeconfig string `mapstructure:"kubeconfig"`
	// NodeName restricts mirrored pods to one node, usually the node the agent runs on.
	NodeName  string    `mapstructure:"node_name"`
	API       API       `mapstructure:"api"`
	Watch     Watch     `mapstructure:"watch"`
	ClusterID ClusterID `mapstructure:"cluster_id"`

	HealthzPort               int           `mapstructure:"healthz_port"`
	MetricsPort               int           `mapstructure:"metrics_port"`
	PprofPort                 int           `mapstructure:"pprof_port"`
	MetadataFile              string        `mapstructure:"metadata_file"`
	HealthyEventIntervalLimit time.Duration `mapstructure:"healthy_event_interval_limit"`
	// MemoryPressureInterval is how often memory usage is compared with the soft memory limit. Zero disables it.
	MemoryPressureInterval time.Duration `mapstructure:"memory_pressure_interval"`
}

type Log struct {
	Level int `mapstructure:"level"`
}

type API struct {
	// URL overrides the API server address found in the kubeconfig.
	URL                string `mapstructure:"url"`
	HTTPVersion        string `mapstructure:"http_version"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

type Watch struct {
	Blocking    bool          `mapstructure:"blocking"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	ListTimeout time.Duration `mapstructure:"list_timeout"`
	Backoff     Backoff       `mapstructure:"backoff"`
	Kinds       []string      `mapstructure:"kinds"`
	FailFast    bool          `mapstructure:"fail_fast"`
}

type Backoff struct {
	Initial time.Duration `mapstructure:"initial"`
	Max     time.Duration `mapstructure:"max"`
	Factor  float64       `mapstructure:"factor"`
	Jitter  float64       `mapstructure:"jitter"`
}

type ClusterID struct {
	// Set derives the cluster id from the uid of the "default" namespace.
	Set bool `mapstructure:"set"`
	// Only runs the namespace handler for the cluster id without mirroring namespaces.
	Only bool `mapstructure:"only"`
}

const (
	HTTPVersion11 = "1.1"
	HTTPVersion2  = "2"
)

var DefaultKinds = []string{
	"namespaces",
	"nodes",
	"pods",
	"services",
	"replicationcontrollers",
	"replicasets",
	"deployments",
	"daemonsets",
}

var durationKeys = []string{
	"watch.read_timeout",
	"watch.list_timeout",
	"watch.backoff.initial",
	"watch.backoff.max",
	"healthy_event_interval_limit",
	"memory_pressure_interval",
}

var cfg *Config

// Get configuration bound to environment variables, flags and the optional config file.
func Get() Config {
	if cfg != nil {
		return *cfg
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnvs(Config{})
	_ = viper.BindEnv("node_name", "NODE_NAME", "SELF_POD_NODE")

	viper.SetDefault("log.level", int(logrus.InfoLevel))
	viper.SetDefault("api.http_version", HTTPVersion2)
	viper.SetDefault("watch.read_timeout", 5*time.Minute)
	viper.SetDefault("watch.list_timeout", time.Minute)
	viper.SetDefault("watch.backoff.initial", time.Second)
	viper.SetDefault("watch.backoff.max", time.Minute)
	viper.SetDefault("watch.backoff.factor", 2.0)
	viper.SetDefault("watch.backoff.jitter", 0.2)
	viper.SetDefault("watch.kinds", DefaultKinds)
	viper.SetDefault("cluster_id.set", true)
	viper.SetDefault("healthz_port", 9876)
	viper.SetDefault("metrics_port", 9877)
	viper.SetDefault("metadata_file", "/tmp/mirror-agent/metadata.json")
	viper.SetDefault("healthy_event_interval_limit", 15*time.Minute)
	viper.SetDefault("memory_pressure_interval", 30*time.Second)

	for _, key := range durationKeys {
		normalizeDurationKey(key)
	}

	cfg = &Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		panic(fmt.Errorf("parsing configuration: %v", err))
	}

	return *cfg
}

// Reset is used only for unit testing to reset configuration and rebind variables.
func Reset() {
	cfg = nil
	viper.Reset()
}

var ErrInvalid = errors.New("invalid configuration")

func (c Config) Validate() error {
	var errs []error
	if c.ClusterID.Only && !c.ClusterID.Set {
		errs = append(errs, errors.New("cluster_id.only requires cluster_id.set"))
	}
	if c.API.HTTPVersion != HTTPVersion11 && c.API.HTTPVersion != HTTPVersion2 {
		errs = append(errs, fmt.Errorf("api.http_version must be %q or %q, got %q", HTTPVersion11, HTTPVersion2, c.API.HTTPVersion))
	}
	if c.Watch.Backoff.Initial <= 0 {
		errs = append(errs, errors.New("watch.backoff.initial must be positive"))
	}
	if c.Watch.Backoff.Max < c.Watch.Backoff.Initial {
		errs = append(errs, errors.New("watch.backoff.max must not be lower than watch.backoff.initial"))
	}
	if c.Watch.Backoff.Factor < 1 {
		errs = append(errs, errors.New("watch.backoff.factor must be at least 1"))
	}
	if c.Watch.Backoff.Jitter < 0 {
		errs = append(errs, errors.New("watch.backoff.jitter must not be negative"))
	}
	if !c.Watch.Blocking && c.Watch.ReadTimeout <= 0 {
		errs = append(errs, errors.New("watch.read_timeout must be positive unless watch.blocking is set"))
	}
	if len(c.Watch.Kinds) == 0 && !c.ClusterID.Set {
		errs = append(errs, errors.New("nothing to watch: watch.kinds is empty and cluster_id.set is disabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// RetrieveKubeConfig builds the rest config from the configured kubeconfig file, falling back to the in-cluster
// config. API overrides are applied on top.
func (c Config) RetrieveKubeConfig(log logrus.FieldLogger) (*rest.Config, error) {
	restConfig, err := kubeConfigFromPath(c.Kubeconfig)
	if err != nil {
		return nil, err
	}

	if restConfig != nil {
		log.Debug("using kubeconfig from env variables")
	} else {
		restConfig, err = rest.InClusterConfig()
		if err != nil {
			return nil, err
		}
		log.Debug("using in cluster kubeconfig")
	}

	if c.API.URL != "" {
		log.Infof("overriding api server address with %s", c.API.URL)
		restConfig.Host = c.API.URL
	}
	if c.API.InsecureSkipVerify {
		log.Warn("tls verification of the api server is disabled")
		restConfig.TLSClientConfig.Insecure = true
		restConfig.TLSClientConfig.CAData = nil
		restConfig.TLSClientConfig.CAFile = ""
	}
	return restConfig, nil
}

func kubeConfigFromPath(kubepath string) (*rest.Config, error) {
	if kubepath == "" {
		return nil, nil
	}

	data, err := os.ReadFile(kubepath)
	if err != nil {
		return nil, fmt.Errorf("reading kubeconfig at %s: %w", kubepath, err)
	}

	restConfig, err := clientcmd.RESTConfigFromKubeConfig(data)
	if err != nil {
		return nil, fmt.Errorf("building rest config from kubeconfig at %s: %w", kubepath, err)
	}

	return restConfig, nil
}
