package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show the instance's current power state",
	Example: `  divinepic status`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := requireController(cmd.Context())
		if err != nil {
			return err
		}

		inst, err := ctrl.Status(cmd.Context())
		if err != nil {
			return fmt.Errorf("describe instance: %w", err)
		}

		fmt.Printf("instance: %s\n", inst.ID)
		fmt.Printf("state:    %s\n", inst.State)
		if inst.Address != "" {
			fmt.Printf("address:  %s\n", inst.Address)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
