package cmd

import (
	"github.com/spf13/cobra"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the instance",
	Long: `Stop the instance immediately, regardless of activity. No-op if the
instance is already stopped or stopping.`,
	Example: `  divinepic stop`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := requireController(cmd.Context())
		if err != nil {
			return err
		}

		if err := ctrl.Stop(cmd.Context()); err != nil {
			return err
		}

		slogger.L(cmd.Context()).Info("stop requested")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
