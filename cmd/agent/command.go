package agent

import (
	"github.com/spf13/cobra"

	"mirror-agent/cmd/utils"
)

const Use = "agent"

func NewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   Use,
		Short: "List and watch the configured kinds and keep them mirrored until stopped",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	utils.WithAPIFlags(cmd)
	utils.WithWatchFlags(cmd)

	return cmd
}
