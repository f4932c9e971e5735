package cli

import (
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the scheduler trigger endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the pipeline on the in-process scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().RunLoop(cmd.Context())
	},
}
