package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"lending/internal/auth"
	"lending/internal/database"
	"lending/internal/handlers"
	"lending/internal/services"
)

var (
	serveAddr    string
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if serveMigrate {
			if err := database.Migrate(a.db); err != nil {
				return err
			}
		}

		issuer, err := auth.NewIssuer(a.cfg.JWTSecret, a.cfg.TokenTTL)
		if err != nil {
			return err
		}

		router := gin.Default()
		handlers.RegisterRoutes(router, a.svc, issuer)

		addr := a.cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		srv := &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if a.cfg.ReconcileInterval > 0 {
			go runReconciler(ctx, a.svc, a.cfg.ReconcileInterval)
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		log.Printf("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default $SERVER_ADDR or :8080)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "migrate the schema before serving")
}

// runReconciler audits the availability counters every interval until ctx is done.
func runReconciler(ctx context.Context, svc services.LibraryService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log.Printf("[INFO] Reconciler: running every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Reconcile(ctx); err != nil && ctx.Err() == nil {
				log.Printf("[ERROR] Reconciler: %v", err)
			}
		}
	}
}
