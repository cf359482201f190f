package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/OKaluzny/healthchain-wallet/internal/app"
	"github.com/OKaluzny/healthchain-wallet/internal/session"
	"github.com/OKaluzny/healthchain-wallet/pkg/models"
)

// connect attaches the stored wallet. It starts locked; the first signing
// operation asks for the password.
func connect(ctx context.Context, svc *app.Services) error {
	_, err := svc.Session.Connect(ctx, session.KindLocal, "")
	return err
}

func printSigned(signed *models.SignedTransaction, err error) error {
	var be *models.BroadcastError
	if errors.As(err, &be) && signed != nil {
		fmt.Fprintf(os.Stderr, "Broadcast failed. Signed transaction %s:\n%s\n", signed.TxID, signed.RawHex)
		fmt.Fprintln(os.Stderr, "Retry with: walletctl resubmit", signed.TxID)
		return err
	}
	if err != nil {
		return err
	}
	return printResult(signed, func() {
		fmt.Printf("TxID: %s\n", signed.TxID)
		if signed.Fee > 0 {
			fmt.Printf("Fee: %d sats\n", signed.Fee)
		}
	})
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show balances of the wallet and watched addresses",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			if err := connect(ctx, svc); err != nil {
				return err
			}
			ev := svc.Monitor.Refresh(ctx)
			if ev.Failed {
				return errors.New(ev.Message)
			}
			return printResult(ev.Balances, func() {
				addrs := make([]string, 0, len(ev.Balances))
				for a := range ev.Balances {
					addrs = append(addrs, a)
				}
				sort.Strings(addrs)
				for _, a := range addrs {
					b := ev.Balances[a]
					fmt.Printf("%s  %.8f BSV  $%.2f  €%.2f  £%.2f\n", a, b.BSV, b.USD, b.EUR, b.GBP)
				}
			})
		}),
	}
}

func payCmd() *cobra.Command {
	var to, idemKey string
	var sats uint64
	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Pay satoshis to an address or public key",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			if err := connect(ctx, svc); err != nil {
				return err
			}
			return printSigned(svc.Session.Pay(ctx, session.PayRequest{
				IdempotencyKey: idemKey,
				Recipient:      to,
				Amount:         sats,
			}))
		}),
	}
	cmd.Flags().StringVar(&to, "to", "", "Recipient address or public key (required)")
	cmd.Flags().Uint64Var(&sats, "sats", 0, "Amount in satoshis (required)")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Return the stored transaction when repeated")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("sats")
	return cmd
}

func signCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign RAW_TX",
		Short: "Sign the wallet's inputs of a raw transaction",
		Args:  cobra.ExactArgs(1),
		RunE: withWallet(func(ctx context.Context, svc *app.Services, args []string) error {
			if err := connect(ctx, svc); err != nil {
				return err
			}
			signed, err := svc.Session.Sign(ctx, args[0])
			if err != nil {
				return err
			}
			return printResult(signed, func() { fmt.Println(signed.RawHex) })
		}),
	}
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List transactions touching the wallet address",
		RunE: withWallet(func(ctx context.Context, svc *app.Services, _ []string) error {
			if err := connect(ctx, svc); err != nil {
				return err
			}
			hist, err := svc.Session.History(ctx)
			if err != nil {
				return err
			}
			return printResult(hist, func() {
				for _, h := range hist {
					fmt.Printf("%s  height %d\n", h.TxID, h.Height)
				}
			})
		}),
	}
}

func resubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit TXID",
		Short: "Broadcast a stored signed transaction again",
		Args:  cobra.ExactArgs(1),
		RunE: withWallet(func(ctx context.Context, svc *app.Services, args []string) error {
			return printSigned(svc.Payer.Resubmit(ctx, args[0]))
		}),
	}
}
