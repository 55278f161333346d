package monitor

import (
	"github.com/spf13/cobra"
)

const Use = "monitor"

func NewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   Use,
		Short: "Follow the agent metadata file and report agent restarts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
}
