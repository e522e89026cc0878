package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the instance and supervise it until idle shutdown",
	Long: `Start the instance, wait for the inference service to become ready,
then stay in the foreground running the idle monitor. The command returns
once the monitor stops the instance or observes an external stop.

Ctrl-C detaches without stopping the instance; use 'divinepic serve' when
supervision should outlive a terminal session.`,
	Example: `  divinepic start`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := requireController(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr, err := ctrl.Start(ctx)
		if err != nil {
			return err
		}

		slogger.L(ctx).Info("instance ready, supervising until idle", "address", addr)
		return ctrl.WaitIdle(ctx)
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
