package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/ndarchive/cli/config"
	"github.com/justapithecus/ndarchive/cli/render"
	"github.com/justapithecus/ndarchive/cli/tui"
	"github.com/justapithecus/ndarchive/ledger"
)

// historyWarningThreshold is the number of runs above which we warn about using --limit.
const historyWarningThreshold = 100

// historyTimeout bounds ledger reads.
const historyTimeout = 30 * time.Second

// HistoryEntry is the thin table row for one run.
type HistoryEntry struct {
	Started  time.Time `json:"started"`
	RunID    string    `json:"run_id"`
	Status   string    `json:"status"`
	Start    int64     `json:"start"`
	End      int64     `json:"end"`
	Appended int64     `json:"appended" render:"bytes"`
	Duration string    `json:"duration"`
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// HistoryCommand returns the history command.
// History reads the run ledger, newest run first.
func HistoryCommand() *cli.Command {
	flags := append(ReadOnlyFlags(),
		ConfigFlag,
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of runs to return (0 = no limit)",
		},
		&cli.BoolFlag{
			Name:  "all",
			Usage: "Show runs of every archive in the ledger",
		},
	)
	return &cli.Command{
		Name:      "history",
		Usage:     "Show recorded reconstruction runs",
		ArgsUsage: "[archive]",
		Flags:     append(flags, LedgerFlags()...),
		Action:    historyAction,
	}
}

func historyAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	ledgerCfg, err := historyLedger(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid configuration: %v", err), 1)
	}
	if ledgerCfg.Path == "" {
		return cli.Exit("no run ledger configured (set --ledger-path or ledger.path)", 1)
	}

	ctx, cancel := context.WithTimeout(c.Context, historyTimeout)
	defer cancel()

	client, err := openLedger(ctx, ledgerCfg)
	if err != nil {
		return fmt.Errorf("failed to open run ledger: %w", err)
	}
	defer func() { _ = client.Close() }()

	archive := c.Args().First()
	switch {
	case c.Bool("all"):
		archive = ""
	case archive == "":
		archive = DefaultArchive
	}

	limit := c.Int("limit")
	records, err := client.History(ctx, archive, limit)
	if err != nil {
		return fmt.Errorf("failed to read run ledger: %w", err)
	}
	if records == nil {
		records = []ledger.RunRecord{}
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(records) > historyWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(c.App.ErrWriter, "Warning: returning %d runs. Consider using --limit to reduce output.\n\n", len(records))
	}

	if c.Bool("tui") {
		return r.RenderTUI(tui.ViewHistory, records)
	}
	if r.Format() == render.FormatTable {
		return r.Render(historyEntries(records))
	}
	return r.Render(records)
}

// historyLedger resolves the ledger location from the config file and flags.
func historyLedger(c *cli.Context) (config.LedgerConfig, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.LedgerConfig{}, err
		}
		cfg = loaded
	}
	applyLedgerFlags(c, &cfg.Ledger)
	if err := cfg.Validate(); err != nil {
		return config.LedgerConfig{}, err
	}
	return cfg.Ledger, nil
}

func historyEntries(records []ledger.RunRecord) []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, HistoryEntry{
			Started:  rec.StartedAt,
			RunID:    rec.RunID,
			Status:   rec.Status,
			Start:    rec.StartRecord,
			End:      rec.EndRecord,
			Appended: rec.BytesAppended,
			Duration: (time.Duration(rec.DurationMS) * time.Millisecond).String(),
		})
	}
	return entries
}
