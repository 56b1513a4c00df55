package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cinderchain/cinder/cmd/commands"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cinder",
		Short: "Cinder - a gossip-replicated proof-of-work ledger",
		Long: `Cinder is a peer-to-peer append-only ledger. Every node holds its own
replica, admits new blocks by proof of work, and reconciles divergent replicas
with its peers over local-network gossip using the longest-valid-chain rule.`,
	}

	rootCmd.AddCommand(commands.StartCmd())
	rootCmd.AddCommand(commands.InitCmd())
	rootCmd.AddCommand(commands.VersionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
