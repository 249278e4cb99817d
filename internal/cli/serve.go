package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/cobra"

	"github.com/roach88/filingindex/internal/model"
	"github.com/roach88/filingindex/internal/search"
	"github.com/roach88/filingindex/internal/store"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search and metrics over HTTP",
		Long: `Serve the search API and Prometheus metrics.

Endpoints:
  GET /search?filing_system=sec&filer_name=acme   matching filings
  GET /search/sql?filing_system=sec&dialect=mssql  the query without running it
  GET /industries/{code}                            an industry and its descendants
  GET /metrics                                      Prometheus metrics
  GET /healthz                                      liveness

Example:
  filingindex serve --addr 127.0.0.1:8080`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.close()
			if addr == "" {
				addr = a.cfg.ServeAddr
			}
			ctx, cancel := signalContext(cmd, a.logger)
			defer cancel()

			srv := &http.Server{
				Addr:              addr,
				Handler:           NewHandler(a.st, a.registry, a.logger),
				ReadHeaderTimeout: 10 * time.Second,
				WriteTimeout:      60 * time.Second,
				IdleTimeout:       60 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening", "addr", addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return a.out.Fail("server failed", err)
				}
				return nil
			case <-ctx.Done():
			}
			shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("shutdown", "error", err)
			}
			a.logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}

// NewHandler builds the HTTP API over st. Metrics are gathered from
// registry.
func NewHandler(st *store.Store, registry *prometheus.Registry, logger *slog.Logger) http.Handler {
	h := &handler{st: st, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/search", h.search)
	r.Get("/search/sql", h.searchSQL)
	r.Get("/industries/{code}", h.industries)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return r
}

type handler struct {
	st     *store.Store
	logger *slog.Logger
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	crit, err := search.CriteriaFromValues(r.URL.Query())
	if err != nil {
		h.fail(w, err)
		return
	}
	records, warnings, err := search.NewComposer(h.st, search.SQLite, h.logger).Run(r.Context(), crit)
	if err != nil {
		h.fail(w, err)
		return
	}
	if records == nil {
		records = []search.Record{}
	}
	writeJSON(w, http.StatusOK, CLIResponse{Status: "ok", Data: records, Warnings: warnings})
}

func (h *handler) searchSQL(w http.ResponseWriter, r *http.Request) {
	dialect, err := search.ParseDialect(r.URL.Query().Get("dialect"))
	if err != nil {
		h.fail(w, err)
		return
	}
	crit, err := search.CriteriaFromValues(r.URL.Query())
	if err != nil {
		h.fail(w, err)
		return
	}
	q, err := search.NewComposer(h.st, dialect, h.logger).Build(r.Context(), crit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CLIResponse{
		Status:   "ok",
		Data:     map[string]any{"sql": q.SQL, "args": q.Args},
		Warnings: q.Warnings,
	})
}

func (h *handler) industries(w http.ResponseWriter, r *http.Request) {
	code, err := strconv.Atoi(chi.URLParam(r, "code"))
	if err != nil {
		h.fail(w, model.WrapError(model.ErrCodeBadSearchParameter, "industry code must be an integer", err))
		return
	}
	tree, err := search.LoadIndustryTree(r.Context(), h.st, "SEC")
	if err != nil {
		h.fail(w, err)
		return
	}
	nodes := tree.Descendants([]int{code})
	if len(nodes) == 0 {
		writeJSON(w, http.StatusNotFound, CLIResponse{Status: "error",
			Error: &CLIError{Code: string(model.ErrCodeMissingData), Message: "unknown industry code"}})
		return
	}
	writeJSON(w, http.StatusOK, CLIResponse{Status: "ok", Data: nodes})
}

// fail maps precondition errors to 400 and everything else to 500.
func (h *handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if model.IsPrecondition(err) || model.IsCode(err, model.ErrCodeBadConnectionParameters) {
		status = http.StatusBadRequest
	} else {
		h.logger.Error("request failed", "error", err)
	}
	code := model.CodeOf(err)
	if code == "" {
		code = "error"
	}
	writeJSON(w, status, CLIResponse{Status: "error", Error: &CLIError{Code: string(code), Message: err.Error()}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
