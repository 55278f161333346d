package dump

import (
	"github.com/spf13/cobra"

	"mirror-agent/cmd/utils"
)

const (
	formatYAML = "yaml"
	formatJSON = "json"
)

var (
	out    string
	format string
)

func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "dump-snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
		Short: "List every configured kind once and print the mirrored state",
		Long: `The dump-snapshot command lists every configured kind once, without watching, and prints the resulting mirror.
Kinds are listed in dependency order, so pods are listed after namespaces.
The command needs list access to every configured kind.`,
	}

	cmd.PersistentFlags().StringVar(&out, "out", "",
		"Specifies the file path where the snapshot will be saved. If this flag is not provided, the snapshot is written to the standard output (stdout).")
	cmd.PersistentFlags().StringVar(&format, "format", formatYAML, "Output format, yaml or json")

	utils.WithAPIFlags(cmd)
	utils.WithWatchFlags(cmd)

	return cmd
}
