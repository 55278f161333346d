package utils

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func WithAPIFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("api-url", "", "API server address, overrides the kubeconfig host")
	viper.BindPFlag("api.url", cmd.PersistentFlags().Lookup("api-url"))

	cmd.PersistentFlags().String("api-http-version", "", "Force the HTTP version used for watches (1.1 or 2)")
	viper.BindPFlag("api.http_version", cmd.PersistentFlags().Lookup("api-http-version"))

	cmd.PersistentFlags().Bool("insecure-skip-tls-verify", false, "Do not verify the API server certificate")
	viper.BindPFlag("api.insecure_skip_verify", cmd.PersistentFlags().Lookup("insecure-skip-tls-verify"))
}

func WithWatchFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringSlice("kinds", nil, "Kinds to mirror")
	viper.BindPFlag("watch.kinds", cmd.PersistentFlags().Lookup("kinds"))

	cmd.PersistentFlags().String("node-name", "", "Mirror only pods scheduled on this node")
	viper.BindPFlag("node_name", cmd.PersistentFlags().Lookup("node-name"))
}
