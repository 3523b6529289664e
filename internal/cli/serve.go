package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mchgeo/internal/api"
	"github.com/banshee-data/mchgeo/internal/monitoring"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen    string
		snapshots bool
		snapshot  string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the geometry query API",
		Long: `Serve the geometry query API over HTTP.

With --snapshots the snapshot database is opened: recorded runs are listed
under /api/runs and the /debug/ pages (including a live SQL console) are
mounted. SIGHUP reloads the geometry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("listen") {
				listen = a.cfg.GetListen()
			}
			if snapshot != "" {
				snapshots = true
			}

			store, err := a.loadStore(cmd.Context(), snapshot)
			if err != nil {
				return err
			}

			mux := http.NewServeMux()
			var runs api.RunLister
			if snapshots {
				database, err := a.openDB()
				if err != nil {
					return err
				}
				defer database.Close()
				if err := database.AttachAdminRoutes(mux); err != nil {
					return err
				}
				runs = database
			}
			server := api.NewServer(store, runs, a.cfg.AnglesInDegrees())
			server.Register(mux)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go a.reloadOnHangup(ctx, server, snapshot)

			return serveHTTP(ctx, &http.Server{
				Addr:              listen,
				Handler:           api.LoggingMiddleware(mux),
				ReadHeaderTimeout: 10 * time.Second,
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":8090", "listen address")
	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "open the snapshot database and mount the admin routes")
	cmd.Flags().StringVar(&snapshot, "from-snapshot", "", `serve a recorded run ("latest" or a run id) instead of the geometry file`)
	return cmd
}

// serveHTTP runs srv until ctx is cancelled, then shuts it down.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	monitoring.Logf("server stopped")
	return nil
}

// reloadOnHangup rebuilds the store on SIGHUP. A failed reload keeps the
// current store.
func (a *app) reloadOnHangup(ctx context.Context, server *api.Server, snapshot string) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			store, err := a.loadStore(ctx, snapshot)
			if err != nil {
				monitoring.Logf("reload failed, keeping current geometry: %v", err)
				continue
			}
			server.SetStore(store)
			monitoring.Logf("reloaded %d features", store.Len())
		}
	}
}
