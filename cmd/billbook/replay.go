package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/billbook/internal/audit"
	"github.com/smallbiznis/billbook/internal/clock"
	"github.com/smallbiznis/billbook/internal/ledger"
	ledgerdomain "github.com/smallbiznis/billbook/internal/ledger/domain"
	"github.com/smallbiznis/billbook/internal/orgcontext"
	"github.com/smallbiznis/billbook/internal/partylock"
	"github.com/smallbiznis/billbook/internal/party"
	"github.com/smallbiznis/billbook/pkg/db"
	"github.com/smallbiznis/billbook/pkg/money"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Recompute a party balance from its ledger entries",
	Long: `Replay sums every ledger entry of a party from zero, checks the sequence and
closing amounts, and compares the result with the stored running balance.
Exits non-zero on a mismatch.`,
	Example: `  billbook replay --org 1001 --party 1790457208150609920`,
	RunE:    runReplay,
}

func init() {
	replayCmd.Flags().String("org", "", "organization id")
	replayCmd.Flags().String("party", "", "party id")
	_ = replayCmd.MarkFlagRequired("org")
	_ = replayCmd.MarkFlagRequired("party")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	rawOrg, _ := cmd.Flags().GetString("org")
	partyID, _ := cmd.Flags().GetString("party")

	orgID, ok := orgcontext.ParseOrgID(rawOrg)
	if !ok {
		return fmt.Errorf("invalid organization id %q", rawOrg)
	}

	var ledgerSvc ledgerdomain.Service
	app := fx.New(
		coreOptions(),
		db.Module,
		clock.Module,
		partylock.Module,
		audit.Module,
		party.Module,
		ledger.Module,
		fx.Populate(&ledgerSvc),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	result, err := ledgerSvc.Replay(orgcontext.WithOrgID(ctx, int64(orgID)), partyID)
	if err != nil && !errors.Is(err, ledgerdomain.ErrLedgerMismatch) {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "party:            %s\n", result.PartyID)
	fmt.Fprintf(out, "entries:          %d\n", result.Entries)
	fmt.Fprintf(out, "computed balance: %s\n", money.Format(result.ComputedBalance))
	fmt.Fprintf(out, "stored balance:   %s\n", money.Format(result.StoredBalance))
	if result.BrokenSequence > 0 {
		fmt.Fprintf(out, "broken at:        sequence %d\n", result.BrokenSequence)
	}
	return err
}
