package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/lifecycle"
	"github.com/VishrutSumeruDigita/divinepic-ec2-lambda/internal/slogger"
)

var (
	processPriority string
	processDetach   bool
)

var processCmd = &cobra.Command{
	Use:   "process <file>...",
	Short: "Start the instance and relay a processing request",
	Long: `Start the instance if needed, wait for the inference service to
become ready, and relay the given files for processing. The service's
response is printed verbatim.

By default the command then supervises the idle monitor until it stops the
instance; --detach returns right after the response instead.`,
	Example: `  divinepic process event-42/a.jpg event-42/b.jpg
  divinepic process --priority high --detach event-42/a.jpg`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := requireController(cmd.Context())
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		addr, result, err := ctrl.StartAndProcess(ctx, lifecycle.Payload{
			Files:    args,
			Priority: processPriority,
		})
		if err != nil {
			return err
		}

		fmt.Println(string(result))

		if processDetach {
			return nil
		}
		slogger.L(ctx).Info("processing dispatched, supervising until idle", "address", addr)
		return ctrl.WaitIdle(ctx)
	},
}

func init() {
	processCmd.Flags().StringVar(&processPriority, "priority", "", "priority hint forwarded to the inference service")
	processCmd.Flags().BoolVar(&processDetach, "detach", false, "return after the response instead of supervising")
	rootCmd.AddCommand(processCmd)
}
