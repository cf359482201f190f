package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OKaluzny/healthchain-wallet/internal/app"
	"github.com/OKaluzny/healthchain-wallet/internal/storage"
	"github.com/OKaluzny/healthchain-wallet/internal/wallet"
)

func printWallet(info *storage.PublicInfo) error {
	return printResult(info, func() {
		fmt.Printf("Address: %s\nPublic key: %s\n", info.Address, info.PubKey)
	})
}

// createCmd creates a wallet from a new mnemonic.
func createCmd() *cobra.Command {
	var words int
	var random bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new wallet, replacing any stored one",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			pw, err := newPassword("New wallet password: ")
			if err != nil {
				return err
			}
			defer clear(pw)

			if random {
				info, err := svc.Manager.CreateRandomWallet(ctx, pw)
				if err != nil {
					return err
				}
				return printWallet(info)
			}
			created, err := svc.Manager.CreateMnemonicWallet(ctx, pw, words)
			if err != nil {
				return err
			}
			return printResult(created, func() {
				fmt.Printf("Mnemonic: %s\n", created.Mnemonic)
				fmt.Println("Write the mnemonic down. It is not shown again.")
				fmt.Printf("Address: %s\nPublic key: %s\n", created.Address, created.PubKey)
			})
		}),
	}
	cmd.Flags().IntVar(&words, "words", 12, "Mnemonic length: 12 or 24")
	cmd.Flags().BoolVar(&random, "random", false, "Use a random key without a mnemonic")
	return cmd
}

// importCmd restores a wallet from a mnemonic read from the terminal.
func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Import a wallet from a mnemonic",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			phrase, err := readPhrase()
			if err != nil {
				return err
			}
			pw, err := newPassword("New wallet password: ")
			if err != nil {
				return err
			}
			defer clear(pw)

			info, err := svc.Manager.ImportMnemonicWallet(ctx, phrase, pw)
			if err != nil {
				return err
			}
			return printWallet(info)
		}),
	}
}

// importKeyCmd imports a hex or WIF private key read from the terminal.
func importKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-key",
		Short: "Import a wallet from a hex or WIF private key",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			key, err := readSecret("Private key (hex or WIF): ")
			if err != nil {
				return err
			}
			defer clear(key)
			pw, err := newPassword("New wallet password: ")
			if err != nil {
				return err
			}
			defer clear(pw)

			info, err := svc.Manager.ImportPrivateKey(ctx, string(key), pw)
			if err != nil {
				return err
			}
			return printWallet(info)
		}),
	}
}

// addressCmd prints the receive address and optionally writes its QR code.
func addressCmd() *cobra.Command {
	var qrFile string
	var size int
	cmd := &cobra.Command{
		Use:   "address",
		Short: "Show the wallet address",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			info, err := svc.Manager.Public(ctx)
			if err != nil {
				return err
			}
			if qrFile != "" {
				png, err := wallet.AddressQR(info.Address, size)
				if err != nil {
					return err
				}
				if err := os.WriteFile(qrFile, png, 0o644); err != nil {
					return fmt.Errorf("writing QR code: %w", err)
				}
			}
			return printWallet(info)
		}),
	}
	cmd.Flags().StringVar(&qrFile, "qr", "", "Write the address QR code to this PNG file")
	cmd.Flags().IntVar(&size, "size", 256, "QR code size in pixels")
	return cmd
}

// addressesCmd lists BIP-44 receive addresses of the stored mnemonic.
func addressesCmd() *cobra.Command {
	var count uint32
	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "List HD receive addresses derived from the mnemonic",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			if count == 0 {
				count = svc.Config.HDAddressCount
			}
			pw, err := readSecret("Wallet password: ")
			if err != nil {
				return err
			}
			defer clear(pw)

			list, err := svc.Manager.DerivedAddresses(ctx, pw, count)
			if err != nil {
				return err
			}
			return printResult(list, func() {
				for _, a := range list {
					fmt.Printf("%-20s %s\n", a.DerivationPath, a.Address)
				}
			})
		}),
	}
	cmd.Flags().Uint32Var(&count, "count", 0, "Number of addresses (default HD_ADDRESS_COUNT)")
	return cmd
}

// rekeyCmd changes the wallet password.
func rekeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rekey",
		Short: "Change the wallet password",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			oldPw, err := readSecret("Current password: ")
			if err != nil {
				return err
			}
			defer clear(oldPw)
			newPw, err := newPassword("New password: ")
			if err != nil {
				return err
			}
			defer clear(newPw)

			if err := svc.Manager.Rekey(ctx, oldPw, newPw); err != nil {
				return err
			}
			fmt.Println("Password changed")
			return nil
		}),
	}
}

// deleteCmd removes the stored wallet.
func deleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the stored wallet",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			if !yes {
				return fmt.Errorf("deleting the wallet cannot be undone; pass --yes to confirm")
			}
			if err := svc.Manager.DeleteWallet(ctx); err != nil {
				return err
			}
			fmt.Println("Wallet deleted")
			return nil
		}),
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
