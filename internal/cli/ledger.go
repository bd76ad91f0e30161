package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(verifyCmd)
	historyCmd.Flags().IntP("limit", "n", 0, "Show only the newest N entries")
}

// ─── balance ────────────────────────────────────────────────────────────────

var balanceCmd = &cobra.Command{
	Use:   "balance ACCOUNT",
	Short: "Show an account's credit balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

func runBalance(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	accountID := args[0]
	fmt.Fprintf(os.Stdout, "%d\n", s.ledger.GetBalance(accountID))
	if !s.ledger.VerifyIntegrity(accountID) {
		fmt.Fprintln(os.Stderr, "warning: account record failed integrity verification; balance reads 0 until repaired")
	}
	return nil
}

// ─── history ────────────────────────────────────────────────────────────────

var historyCmd = &cobra.Command{
	Use:   "history ACCOUNT",
	Short: "Show an account's transaction history",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	history, err := s.ledger.History(args[0])
	if err != nil {
		return err
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	if len(history) == 0 {
		fmt.Fprintln(os.Stdout, "No transactions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tTYPE\tAMOUNT\tREASON")
	for _, tx := range history {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			tx.Timestamp.Format("2006-01-02 15:04:05"), tx.Type, tx.Amount, tx.Reason)
	}
	return w.Flush()
}

// ─── verify ─────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify ACCOUNT",
	Short: "Verify an account record's integrity digest",
	Long: `Recompute the HMAC digest over the account's balance and history and
compare it against the stored value. A mismatch means the record was edited
outside the ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if !s.ledger.VerifyIntegrity(args[0]) {
		return fmt.Errorf("account %q failed integrity verification", args[0])
	}
	fmt.Fprintf(os.Stdout, "Account %q verified.\n", args[0])
	return nil
}
