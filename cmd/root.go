package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"mirror-agent/cmd/agent"
	"mirror-agent/cmd/dump"
	"mirror-agent/cmd/monitor"
	"mirror-agent/cmd/utils"
)

var rootCmd = &cobra.Command{
	Use:               "mirror-agent",
	Short:             "Mirrors cluster state into memory by listing and watching the API server",
	PersistentPreRunE: preRun,
}

var cfgFile string

func preRun(_ *cobra.Command, _ []string) error {
	if cfgFile == "" {
		if e := os.Getenv("CONFIG_PATH"); e != "" {
			cfgFile = e
		}
	}

	if cfgFile != "" {
		fmt.Println("Using config from a file", cfgFile)
		viper.SetConfigType("yaml")
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
		viper.OnConfigChange(reloadLogLevel)
		viper.WatchConfig()
	}

	return nil
}

// reloadLogLevel applies a changed log level from the config file. Other keys need a restart.
func reloadLogLevel(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	level := logrus.Level(viper.GetInt("log.level"))
	if utils.SetLogLevel(level) {
		fmt.Printf("Config file %s changed, log level set to %s\n", e.Name, level)
	}
}

func Execute(ctx context.Context) {
	cmd, _, err := rootCmd.Find(os.Args[1:])
	// default cmd if no cmd is given
	if err == nil && cmd.Use == rootCmd.Use && !errors.Is(cmd.Flags().Parse(os.Args[1:]), pflag.ErrHelp) {
		rootCmd.SetArgs(append([]string{agent.Use}, os.Args[1:]...))
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fatal(err)
	}
}

func init() {
	rootCmd.PersistentFlags().Int("log-level", int(logrus.InfoLevel), "Log level (0-6)")
	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("kubeconfig", "", "Path to kubeconfig file")
	viper.BindPFlag("kubeconfig", rootCmd.PersistentFlags().Lookup("kubeconfig"))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to agent config file")

	rootCmd.AddCommand(agent.NewCmd())
	rootCmd.AddCommand(monitor.NewCmd())
	rootCmd.AddCommand(dump.NewCmd())
}

func fatal(err error) {
	_, _ = fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
