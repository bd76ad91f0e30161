package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/satoshipuzzles/lumaledger/internal/api"
	"github.com/satoshipuzzles/lumaledger/internal/generation"
	"github.com/satoshipuzzles/lumaledger/internal/payments"
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("no-reconcile", false, "Skip the startup backlog reconciliation")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local API server",
	Long: `Run the local HTTP API the browser client talks to. On startup the
persisted payment backlog is reconciled against the payment backend, so
credits lost to a crash or a closed tab are recovered before serving.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	skipReconcile, _ := cmd.Flags().GetBool("no-reconcile")

	s, err := openStack()
	if err != nil {
		return err
	}
	defer s.Close()

	if s.cfg.Payments.BaseURL == "" {
		return fmt.Errorf("[payments] base_url is not configured")
	}
	if s.cfg.Generation.BaseURL == "" {
		return fmt.Errorf("[generation] base_url is not configured")
	}

	paymentClient := payments.NewClient(s.cfg.Payments.BaseURL, s.cfg.PaymentTimeout())
	genClient := generation.NewClient(s.cfg.Generation.BaseURL, s.cfg.GenerationTimeout())

	srv := api.NewServer(api.Deps{
		Ledger:           s.ledger,
		Payments:         paymentClient,
		Generation:       genClient,
		Prober:           generation.NewHTTPProber(10 * time.Second),
		TxLog:            s.db,
		Backlog:          s.db,
		Jobs:             s.db,
		PaymentPoller:    s.cfg.PaymentPollerConfig(),
		Reconciler:       s.cfg.ReconcilerConfig(),
		GenerationPoller: s.cfg.GenerationPollerConfig(),
		PriceCredits:     s.cfg.Generation.PriceCredits,
	})
	if s.cfg.API.Metrics {
		srv.EnableMetrics()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !skipReconcile {
		result, err := srv.Reconciler().ReconcileBacklog(ctx)
		if err != nil {
			// Reconciliation failure is not fatal to serving: the backlog is
			// durable and the next run retries it.
			log.Printf("serve: startup reconciliation: %v", err)
		} else if len(result.VerifiedHashes) > 0 {
			log.Printf("serve: startup reconciliation credited %d payments", len(result.VerifiedHashes))
		}
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("serve: listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Printf("serve: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
