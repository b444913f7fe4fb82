package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Skufu/triage/internal/config"
	"github.com/Skufu/triage/internal/engine"
	"github.com/Skufu/triage/internal/platform/logger"
	"github.com/Skufu/triage/internal/profile"
	"github.com/Skufu/triage/internal/report"
	"github.com/Skufu/triage/internal/server"
	"github.com/Skufu/triage/internal/session"
	"github.com/Skufu/triage/internal/sessioncache"
	"github.com/Skufu/triage/internal/store/postgres"
	"github.com/Skufu/triage/internal/symptom"
)

func main() {
	os.Exit(exitCode(newRootCmd().Execute()))
}

// exitCode maps a command error to the process status. Rejected rule
// profiles exit with 2 so deploy scripts can tell them from runtime failures.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case profile.IsConfigurationError(err):
		return 2
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	serve := serveCmd()
	root := &cobra.Command{
		Use:          "triage",
		Short:        "Rule-based differential diagnosis service",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	root.AddCommand(serve, migrateCmd(), evaluateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the record store schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}
			version, err := postgres.Migrate(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
			return nil
		},
	})
	return cmd
}

func evaluateCmd() *cobra.Command {
	var (
		symptoms    []string
		riskFactors []string
		age         int
		format      string
		profiles    string
	)
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score one symptom selection and print the report",
		Example: `  triage evaluate --symptom Fever=severe --symptom "Chills=moderate/days" --risk recent_travel --age 70
  triage evaluate --symptom Confusion --symptom Seizures --format pdf > report.pdf`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			req, err := buildRequest(symptoms, riskFactors, age)
			if err != nil {
				return err
			}
			rules, err := profile.Load(profiles)
			if err != nil {
				return err
			}

			log := logger.New("evaluate")
			sess, err := session.NewService(rules, session.Options{Logger: &log}).Diagnose(cmd.Context(), req)
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), f, sess)
		},
	}
	cmd.Flags().StringArrayVarP(&symptoms, "symptom", "s", nil, `selected symptom as Name[=severity[/duration]] (repeatable)`)
	cmd.Flags().StringSliceVarP(&riskFactors, "risk", "r", nil, "active risk factor keys")
	cmd.Flags().IntVar(&age, "age", -1, "patient age in years (negative means unknown)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "report format: text or pdf")
	cmd.Flags().StringVar(&profiles, "profiles", os.Getenv("PROFILES_PATH"), "rule profile YAML (defaults to the built-in set)")
	return cmd
}

// buildRequest turns evaluate flags into a request. A symptom flag reads
// Name, Name=severity, Name=/duration or Name=severity/duration.
func buildRequest(symptoms, riskFactors []string, age int) (engine.Request, error) {
	var req engine.Request
	for _, raw := range symptoms {
		name, qualifiers, hasQualifiers := strings.Cut(raw, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return engine.Request{}, fmt.Errorf("empty symptom in %q", raw)
		}
		s := symptom.Name(name)
		req.SelectedSymptoms = append(req.SelectedSymptoms, s)
		if !hasQualifiers {
			continue
		}
		sev, dur, _ := strings.Cut(qualifiers, "/")
		obs := engine.Observation{
			Severity: engine.Severity(strings.TrimSpace(sev)),
			Duration: engine.Duration(strings.TrimSpace(dur)),
		}
		if obs == (engine.Observation{}) {
			continue
		}
		if req.Observations == nil {
			req.Observations = make(map[symptom.Name]engine.Observation)
		}
		req.Observations[s] = obs
	}
	for _, key := range riskFactors {
		if req.RiskFactors == nil {
			req.RiskFactors = make(map[string]bool)
		}
		req.RiskFactors[strings.TrimSpace(key)] = true
	}
	if age >= 0 {
		req.PatientAge = &age
	}
	return req, nil
}

func runServer(ctx context.Context, cfg *config.Config) error {
	gin.SetMode(cfg.GinMode)
	log := logger.NewWithWriter(os.Stderr, "server", cfg.LogLevel)

	rules, err := profile.Load(cfg.ProfilesPath)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	var db server.HealthChecker
	opts := session.Options{PersistTimeout: cfg.PersistTimeout}
	if cfg.EnableDB {
		if cfg.RunMigrations {
			version, err := postgres.Migrate(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			log.Info().Uint("version", version).Msg("migrations applied")
		}
		pool, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return fmt.Errorf("database connection failed: %w", err)
		}
		defer pool.Close()

		store := postgres.New(pool)
		opts.Store, opts.Patients, db = store, store, store
	}

	if cfg.RedisAddr != "" {
		client, err := sessioncache.Dial(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		defer client.Close()
		opts.Cache = sessioncache.NewRedis(client, cfg.SessionCacheTTL)
	} else {
		opts.Cache = sessioncache.NewMemory(cfg.SessionCacheSize)
	}

	svcLog := logger.NewWithWriter(os.Stderr, "session", cfg.LogLevel)
	opts.Logger = &svcLog
	svc := session.NewService(rules, opts)

	router := server.NewRouter(svc, db, logger.NewWithWriter(os.Stderr, "http", cfg.LogLevel))
	srv := server.NewHTTPServer(cfg.Port, router)

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	log.Info().
		Str("port", cfg.Port).
		Bool("db", cfg.EnableDB).
		Bool("redis", cfg.RedisAddr != "").
		Int("profiles", len(rules.Profiles())).
		Msg("server listening")
	return waitForShutdown(srv, svc, serveErr, log)
}

func waitForShutdown(srv *http.Server, svc *session.Service, serveErr <-chan error, log zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server error: %w", err)
	case <-stop:
	}

	log.Info().Msg("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := svc.Wait(ctx); err != nil {
		log.Warn().Err(err).Msg("pending session writes abandoned")
	}
	return nil
}
