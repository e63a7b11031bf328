package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/alanyoungcy/ghostyield/internal/config"
	"github.com/alanyoungcy/ghostyield/internal/crypto"
	"github.com/alanyoungcy/ghostyield/internal/platform/clearnode"
)

// runStatus authenticates to ClearNode with the wallet key and prints the
// wallet's channels and ledger balances.
func runStatus(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) error {
	key, err := crypto.ResolveKey(cfg.WalletKey())
	if err != nil {
		return fmt.Errorf("wallet key: %w", err)
	}

	client, err := clearnode.NewClient(cfg.ClearNodeClient(), key, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	channels, err := client.GetChannels(ctx)
	if err != nil {
		return fmt.Errorf("get channels: %w", err)
	}
	balances, err := client.GetLedgerBalances(ctx, client.Address())
	if err != nil {
		return fmt.Errorf("get ledger balances: %w", err)
	}

	fmt.Fprintf(out, "wallet %s\n\n", client.Address().Hex())

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tCHAIN\tSTATUS\tTOKEN\tAMOUNT")
	for _, ch := range channels {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", ch.ChannelID, ch.ChainID, ch.Status, ch.Token, ch.Amount)
	}
	if len(channels) == 0 {
		fmt.Fprintln(tw, "(none)\t\t\t\t")
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "ASSET\tAMOUNT")
	for _, b := range balances {
		fmt.Fprintf(tw, "%s\t%s\n", b.Asset, b.Amount)
	}
	if len(balances) == 0 {
		fmt.Fprintln(tw, "(none)\t")
	}
	return tw.Flush()
}
