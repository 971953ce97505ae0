// Command feectl is the operator tool for the fee portal: test-data cleanup,
// transaction lookup, expiry sweeps and signed webhook simulation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "feectl",
		Short:        "feectl - operator tool for the school fee payment portal",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(clearCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(simulateWebhookCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
