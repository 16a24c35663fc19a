package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "gym-market"

func main() {
	rootCmd := &cobra.Command{
		Use:          "gym-market",
		Short:        "Marketplace for unused gym memberships",
		SilenceUsage: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
