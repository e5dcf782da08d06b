package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "impactledger",
	Short: "Custody ledger for milestone-gated NGO donations",
	Long: `impactledger holds donated funds in per-NGO escrow, skims the protocol fee,
and releases funds against approved milestones. Fee and module changes go
through token-weighted governance and a timelock.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(genesisCmd)
	genesisCmd.AddCommand(genesisCheckCmd)

	genesisCheckCmd.Flags().StringP("file", "f", "", "Genesis file to check (defaults to GENESIS_PATH)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
