package dump

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"sigs.k8s.io/yaml"

	"mirror-agent/cmd/utils"
	"mirror-agent/internal/components"
	"mirror-agent/internal/config"
	"mirror-agent/internal/state"
	"mirror-agent/internal/watch"
)

func run(ctx context.Context) error {
	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := utils.NewLogger(cfg.Log.Level)
	logger.SetOutput(os.Stderr)
	log := logger.WithField("version", config.VersionInfo.Version)

	log.Infof("starting dump of cluster snapshot")

	restconfig, err := cfg.RetrieveKubeConfig(log)
	if err != nil {
		return err
	}
	restconfig.UserAgent = config.VersionInfo.UserAgent()

	source, err := watch.NewHTTPSource(log, restconfig, watch.HTTPOptions{HTTPVersion: cfg.API.HTTPVersion})
	if err != nil {
		return fmt.Errorf("creating source: %w", err)
	}

	snapshot, err := collect(ctx, log, source, cfg)
	if err != nil {
		return err
	}

	if out == "" {
		err = write(os.Stdout, format, snapshot)
	} else {
		var output *os.File
		output, err = os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		err = writeAndClose(output, format, snapshot)
	}
	if err != nil {
		return err
	}

	log.Infof("completed dump of cluster snapshot")

	return nil
}

// collect lists every configured kind once in dependency order and returns the resulting mirror.
func collect(ctx context.Context, log logrus.FieldLogger, source watch.Source, cfg config.Config) (*state.Snapshot, error) {
	store := state.New()
	handlers, err := components.Build(log, store, source, utils.BuildConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("building handlers: %w", err)
	}

	engine, err := watch.NewEngine(log, handlers)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	if err := engine.ListOnce(ctx); err != nil {
		return nil, err
	}

	return store.Snapshot(), nil
}

func write(w io.Writer, format string, snapshot *state.Snapshot) error {
	var (
		data []byte
		err  error
	)
	switch format {
	case formatYAML:
		data, err = yaml.Marshal(snapshot)
	case formatJSON:
		data, err = json.MarshalIndent(snapshot, "", "  ")
		data = append(data, '\n')
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = w.Write(data)
	return err
}

// writeAndClose writes the snapshot to wc and closes it. A failed close is reported like a failed write.
func writeAndClose(wc io.WriteCloser, format string, snapshot *state.Snapshot) error {
	if err := write(wc, format, snapshot); err != nil {
		_ = wc.Close()
		return err
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("closing output: %w", err)
	}
	return nil
}
