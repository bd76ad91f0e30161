package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satoshipuzzles/lumaledger/internal/payments"
)

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Verify the pending-payment backlog",
	Long: `Load the persisted backlog of payments whose outcome is uncertain and
verify each against the payment backend, crediting confirmed payments. The
same reconciliation runs automatically when the server starts.`,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if s.cfg.Payments.BaseURL == "" {
		return fmt.Errorf("[payments] base_url is not configured")
	}

	backend := payments.NewClient(s.cfg.Payments.BaseURL, s.cfg.PaymentTimeout())
	reconciler := payments.NewReconciler(backend, s.ledger, s.db, nil, s.cfg.ReconcilerConfig())

	result, err := reconciler.ReconcileBacklog(cmd.Context())
	if err != nil {
		return err
	}
	if len(result.Settled) == 0 {
		fmt.Fprintln(os.Stdout, "Backlog is empty.")
		return nil
	}

	unverified := len(result.Settled) - len(result.VerifiedHashes)
	fmt.Fprintf(os.Stdout, "Reconciled %d pending payments: %d credited, %d still unverified.\n",
		len(result.Settled), len(result.VerifiedHashes), unverified)
	for _, hash := range result.VerifiedHashes {
		fmt.Fprintf(os.Stdout, "  • %s credited\n", hash)
	}
	return nil
}
