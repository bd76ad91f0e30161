// Package cli implements the lumaledger command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satoshipuzzles/lumaledger/internal/daemon"
	"github.com/satoshipuzzles/lumaledger/internal/infra/sqlite"
	"github.com/satoshipuzzles/lumaledger/internal/ledger"
)

var rootCmd = &cobra.Command{
	Use:   "lumaledger",
	Short: "Credit ledger and reconciliation engine for video generation",
	Long: `lumaledger tracks prepaid generation credits in a tamper-evident
ledger, watches Lightning invoices to settlement, and reconciles payments
whose outcome was lost to a crash or a closed browser tab.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// ─── Shared Setup ───────────────────────────────────────────────────────────

// stack bundles the components a command needs.
type stack struct {
	cfg    *daemon.Config
	db     *sqlite.DB
	ledger *ledger.Ledger
}

// openStack loads configuration, opens the database, and builds the ledger.
// Callers must Close the stack.
func openStack() (*stack, error) {
	cfg, err := daemon.Load()
	if err != nil {
		return nil, err
	}
	secret, err := cfg.LedgerSecret()
	if err != nil {
		return nil, err
	}
	db, err := sqlite.Open(cfg.DataDir())
	if err != nil {
		return nil, err
	}
	l := ledger.New(db, secret, ledger.Options{TxLog: db})
	return &stack{cfg: cfg, db: db, ledger: l}, nil
}

func (s *stack) Close() { s.db.Close() }
