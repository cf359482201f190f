// Command walletctl manages the local wallet from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/OKaluzny/healthchain-wallet/internal/app"
	"github.com/OKaluzny/healthchain-wallet/internal/config"
	"github.com/OKaluzny/healthchain-wallet/internal/infra"
	"github.com/OKaluzny/healthchain-wallet/internal/session"
)

const version = "0.3.0"

var (
	output   string
	logLevel string
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:           "walletctl",
		Short:         "Health records portal wallet CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "Output format: text, json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")

	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(importKeyCmd())
	rootCmd.AddCommand(addressCmd())
	rootCmd.AddCommand(addressesCmd())
	rootCmd.AddCommand(balanceCmd())
	rootCmd.AddCommand(payCmd())
	rootCmd.AddCommand(signCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(resubmitCmd())
	rootCmd.AddCommand(rekeyCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("walletctl version %s\n", version)
		},
	}
}

// withWallet opens the configured storage, runs fn and closes it again.
// Unlock requests are answered from the terminal.
func withWallet(fn func(ctx context.Context, svc *app.Services, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.FromEnv()
		if err != nil {
			return err
		}
		cfg.LogLevel = logLevel
		infra.SetupLogger(os.Stderr, cfg)

		svc, err := app.New(cfg, session.CredentialFunc(promptCredential))
		if err != nil {
			return err
		}
		defer svc.Close()
		return fn(cmd.Context(), svc, args)
	}
}

// printResult writes v as JSON or calls text for the human form.
func printResult(v any, text func()) error {
	if output != "json" {
		text()
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
