package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"soundwork/pkg/config"
	"soundwork/pkg/journal"
	"soundwork/pkg/ledger"
)

// journalRow is the printable form of one journal entry.
type journalRow struct {
	Seq        int64  `json:"seq" yaml:"seq"`
	Type       string `json:"type" yaml:"type"`
	AssetID    int64  `json:"asset_id,omitempty" yaml:"asset_id,omitempty"`
	Caller     string `json:"caller" yaml:"caller"`
	Amount     int64  `json:"amount,omitempty" yaml:"amount,omitempty"`
	OccurredAt string `json:"occurred_at" yaml:"occurred_at"`
}

func toRows(events []ledger.Event) []journalRow {
	rows := make([]journalRow, 0, len(events))
	for _, ev := range events {
		rows = append(rows, journalRow{
			Seq:        ev.Seq,
			Type:       string(ev.Type),
			AssetID:    ev.AssetID,
			Caller:     ev.Caller.String(),
			Amount:     ev.Amount,
			OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return rows
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the ledger event journal",
	}
	cmd.AddCommand(newJournalListCmd(), newJournalVerifyCmd())
	return cmd
}

func newJournalListCmd() *cobra.Command {
	var (
		format string
		since  int64
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print journal events",
		Long: `Print journal events in sequence order.

Examples:
  soundwork journal list                 Colored table
  soundwork journal list --since 100     Events after seq 100
  soundwork journal list --format yaml   YAML document`,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadJournal(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			filtered := events[:0]
			for _, ev := range events {
				if ev.Seq > since {
					filtered = append(filtered, ev)
				}
			}
			return printJournal(os.Stdout, toRows(filtered), format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table, yaml or json")
	cmd.Flags().Int64Var(&since, "since", 0, "Only events with a greater sequence number")
	return cmd
}

func newJournalVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Replay the journal into a scratch ledger and report inconsistencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, closeFn, err := openJournal(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := journal.Verify(cmd.Context(), j,
				ledger.Address(cfg.Marketplace.OwnerAddress),
				ledger.Address(cfg.Marketplace.MarketplaceAddress))
			if err != nil {
				fmt.Println(color.RedString("✗"), "journal does not replay:", err)
				return err
			}
			fmt.Println(color.GreenString("✓"), fmt.Sprintf("journal replays cleanly (%d events)", n))
			return nil
		},
	}
}

// openJournal opens the postgres journal. The memory backend has nothing to
// inspect outside a running server.
func openJournal(ctx context.Context, c *config.Config) (journal.Journal, func(), error) {
	if c.Database.Backend != config.BackendPostgres {
		return nil, nil, fmt.Errorf("journal commands need STORAGE_BACKEND=%s", config.BackendPostgres)
	}
	pool, err := connectPool(ctx, c, zap.NewNop())
	if err != nil {
		return nil, nil, err
	}
	return journal.NewPostgresJournal(pool), pool.Close, nil
}

func loadJournal(ctx context.Context, c *config.Config) ([]ledger.Event, error) {
	j, closeFn, err := openJournal(ctx, c)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return j.Load(ctx)
}

func printJournal(w io.Writer, rows []journalRow, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rows); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, color.CyanString("SEQ")+"\t"+color.CyanString("TYPE")+"\t"+color.CyanString("ASSET")+"\t"+color.CyanString("CALLER")+"\t"+color.CyanString("AMOUNT")+"\t"+color.CyanString("AT"))
		for _, r := range rows {
			asset := "-"
			if r.AssetID != 0 {
				asset = fmt.Sprint(r.AssetID)
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", r.Seq, color.YellowString(r.Type), asset, r.Caller, r.Amount, r.OccurredAt)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintln(w, color.HiBlackString(fmt.Sprintf("%d events", len(rows))))
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, yaml or json)", format)
	}
}
