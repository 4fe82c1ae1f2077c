// Command prospect serves the company search, analysis, and export API.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/prospect/dbopen"
	"github.com/hazyhaar/prospect/prospect"
	"github.com/hazyhaar/prospect/shield"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	port := env("PORT", "8080")
	configPath := env("CONFIG_FILE", "")
	logLevel := env("LOG_LEVEL", "info")

	// Logging.
	var lvl slog.Level
	switch logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	// Configuration: YAML file plus env overrides for deployment secrets.
	cfg := prospect.DefaultConfig()
	if configPath != "" {
		var err error
		cfg, err = prospect.LoadConfigFile(configPath)
		if err != nil {
			slog.Error("load config", "path", configPath, "error", err)
			os.Exit(1)
		}
	}
	if v := os.Getenv("PDL_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("PDL_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if cfg.Upstream.APIKey == "" {
		slog.Error("PDL_API_KEY is required")
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open db", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := prospect.ApplySchema(db); err != nil {
		slog.Error("apply schema", "error", err)
		os.Exit(1)
	}
	if err := shield.Init(db); err != nil {
		slog.Error("init shield", "error", err)
		os.Exit(1)
	}
	seedRateLimits(db)

	svc := prospect.New(cfg, db, prospect.WithLogger(logger))

	// A crash mid-export leaves a processing row that would block every
	// future run; fail it now so the operator can resume.
	if n, err := svc.RecoverInterruptedExports(ctx); err != nil {
		slog.Error("recover interrupted exports", "error", err)
		os.Exit(1)
	} else if n > 0 {
		slog.Warn("recovered interrupted exports", "count", n)
	}

	// Periodic cache sweep.
	go func() {
		tick := time.NewTicker(1 * time.Hour)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				if n, err := svc.PurgeExpiredCache(ctx); err != nil {
					slog.Warn("cache purge", "error", err)
				} else if n > 0 {
					slog.Info("cache purge", "removed", n)
				}
			}
		}
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	stack, rl := shield.DefaultAPIStack(db)
	for _, mw := range stack {
		r.Use(mw)
	}
	rl.StartReloader(ctx.Done())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Post("/api/authenticate", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Authenticate(r.Context()); err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, map[string]string{"upstream": "ok"})
	})

	r.Post("/api/search_companies", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MinEmployees  int      `json:"min_employees"`
			MaxEmployees  int      `json:"max_employees"`
			FundingStages []string `json:"funding_stages"`
			Page          int      `json:"page"`
			Size          int      `json:"size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		if req.Page == 0 {
			req.Page = 1
		}
		if req.Size == 0 {
			req.Size = 10
		}
		result, err := svc.Search(r.Context(), prospect.SearchFilters{
			MinEmployees:  req.MinEmployees,
			MaxEmployees:  req.MaxEmployees,
			FundingStages: req.FundingStages,
		}, req.Page, req.Size)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, result)
	})

	r.Post("/api/analyze_company", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			CompanyName   string `json:"company_name"`
			CompanyDomain string `json:"company_domain"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, 400, err)
			return
		}
		analysis, err := svc.Analyze(r.Context(), req.CompanyName, req.CompanyDomain)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, analysis)
	})

	r.Post("/api/export_companies", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StartPage int `json:"start_page"`
		}
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, 400, err)
				return
			}
		}
		if req.StartPage == 0 {
			req.StartPage = 1
		}

		artifact, err := svc.ExportCompanies(r.Context(), req.StartPage)
		if err != nil {
			// A mid-run failure still reports the resume point.
			if run, serr := svc.ExportStatus(r.Context()); serr == nil && run.Status == "failed" {
				writeJSON(w, statusFor(err), map[string]any{
					"error":                err.Error(),
					"last_successful_page": run.LastSuccessfulPage,
					"can_resume":           run.CanResume,
				})
				return
			}
			writeServiceError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+artifact.Filename()+`"`)
		if err := artifact.WriteCSV(w); err != nil {
			slog.Error("write csv", "error", err)
		}
	})

	r.Get("/api/export_status", func(w http.ResponseWriter, r *http.Request) {
		run, err := svc.ExportStatus(r.Context())
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, 200, run)
	})

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("prospect listening", "port", port, "db", cfg.DBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// seedRateLimits installs default limits for the expensive endpoints.
// INSERT OR IGNORE keeps operator-tuned rows intact across restarts.
func seedRateLimits(db *sql.DB) {
	rows := []struct {
		endpoint string
		max      int
		window   int
	}{
		{"POST /api/search_companies", 60, 60},
		{"POST /api/analyze_company", 30, 60},
		{"POST /api/export_companies", 5, 300},
		{"POST /api/authenticate", 10, 60},
	}
	for _, r := range rows {
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO rate_limits (endpoint, max_requests, window_seconds, enabled)
			 VALUES (?, ?, ?, 1)`,
			r.endpoint, r.max, r.window); err != nil {
			slog.Warn("seed rate limits", "endpoint", r.endpoint, "error", err)
		}
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// writeServiceError maps service sentinels to HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, prospect.ErrInvalidInput):
		return 400
	case errors.Is(err, prospect.ErrCompanyNotFound):
		return 404
	case errors.Is(err, prospect.ErrExportInProgress):
		return 409
	default:
		return 502
	}
}
