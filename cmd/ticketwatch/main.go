package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/ticketwatch/internal/interfaces/cli/migrate"
	"github.com/orris-inc/ticketwatch/internal/interfaces/cli/watch"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ticketwatch",
		Short: "Ticketwatch - issue tracker to chat relay",
		Long:  `Ticketwatch watches an issue tracker for new tickets, relays them to a chat channel, and tracks each relayed ticket through its lifecycle.`,
	}

	rootCmd.AddCommand(
		watch.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
