package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-cli/internal/consolidate"
	"github.com/sells-group/catalog-cli/internal/facet"
	"github.com/sells-group/catalog-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the catalog read API",
	Long: "Serves the consolidated catalog over HTTP: product listing, faceted counts, " +
		"run history, and an endpoint to trigger a consolidation run.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		engine, err := initEngine(st)
		if err != nil {
			return err
		}
		calc, err := initFacets()
		if err != nil {
			return err
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, st, engine, calc),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("serve: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("serve: starting", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "serve: listen")
		}
		return nil
	},
}

// newRouter builds the HTTP API. Triggered consolidation runs execute on
// baseCtx, the server's lifetime context, so they survive the request but
// are cancelled on shutdown.
func newRouter(baseCtx context.Context, st store.Store, engine *consolidate.Engine, calc *facet.Calculator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	// One consolidation run at a time; a second trigger gets 409.
	var runMu sync.Mutex

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/products", func(w http.ResponseWriter, req *http.Request) {
		products, err := st.ListProducts(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	})

	r.Get("/api/facets", func(w http.ResponseWriter, req *http.Request) {
		products, err := st.ListProducts(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		query := req.URL.Query()
		result := calc.Counts(products, facet.Criteria{
			Brands:     query["brand"],
			Categories: query["category"],
		})
		writeJSON(w, http.StatusOK, result)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		runs, err := st.ListRuns(req.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Post("/api/consolidate", func(w http.ResponseWriter, req *http.Request) {
		if !runMu.TryLock() {
			writeJSON(w, http.StatusConflict, map[string]string{"error": "a consolidation run is already in progress"})
			return
		}
		go func() {
			defer runMu.Unlock()
			// Detached from the request context: the run outlives the
			// HTTP exchange and stops on server shutdown instead.
			if _, err := engine.Run(baseCtx); err != nil {
				zap.L().Error("serve: consolidation run failed", zap.Error(err))
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("serve: request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
