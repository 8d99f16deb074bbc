package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pliu/prompthub/internal/auth"
	"github.com/pliu/prompthub/internal/config"
	"github.com/pliu/prompthub/internal/files"
	"github.com/pliu/prompthub/internal/handlers"
	"github.com/pliu/prompthub/internal/llm"
	"github.com/pliu/prompthub/internal/projects"
	"github.com/pliu/prompthub/internal/router"
	"github.com/pliu/prompthub/internal/store/sqlstore"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "prompthub",
	Short:         "Project-scoped LLM chat with file attachments",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Apply migrations and start the HTTP server",
	RunE:  runServe,
}

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Apply database migrations and exit",
	RunE:  runInitDB,
}

func init() {
	serveCmd.Flags().String("addr", "", "http service address (overrides ADDR)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initDBCmd)
}

// setup loads .env and the environment and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	var log *zap.Logger
	if cfg.IsProduction() {
		log, err = zap.NewProduction()
	} else {
		log, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log, nil
}

func openStore(cfg *config.Config, log *zap.Logger) (*sqlstore.SQLStore, error) {
	driver, dsn, err := cfg.Database()
	if err != nil {
		return nil, err
	}
	return sqlstore.New(driver, dsn, log)
}

func runInitDB(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	log.Info("database initialized")
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Addr = addr
	}
	if cfg.SecretKey == "change-me" {
		log.Warn("SECRET_KEY is not set; sessions are signed with the default key")
	}
	if cfg.OpenRouterAPIKey == "" {
		log.Warn("OPENROUTER_API_KEY is not set; chat requests will fail")
	}

	st, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	creds, err := auth.NewCredentials(st, cfg.BcryptCost, log)
	if err != nil {
		return err
	}
	sessions := auth.NewSessions(cfg.SecretKey, cfg.SessionTTL, cfg.SecureCookies)
	projectSvc := projects.NewService(st, log)

	fileStore, err := files.NewStore(cfg.UploadDir, projectSvc, cfg.AllowedExtensions, cfg.MaxUploadBytes, log)
	if err != nil {
		return err
	}
	defer fileStore.Close()

	chat := llm.New(llm.Options{
		APIKey:   cfg.OpenRouterAPIKey,
		Model:    cfg.OpenRouterModel,
		BaseURL:  cfg.OpenRouterBaseURL,
		Timeout:  cfg.LLMTimeout,
		AppURL:   cfg.AppURL,
		AppTitle: cfg.AppTitle,
	}, log)

	tmpl, err := handlers.NewTemplates(log)
	if err != nil {
		return err
	}

	h := router.New(router.Deps{
		Sessions:    sessions,
		Auth:        &handlers.AuthHandler{Credentials: creds, Sessions: sessions, Templates: tmpl, Log: log},
		Projects:    &handlers.ProjectHandler{Projects: projectSvc, Files: fileStore, Templates: tmpl, Log: log},
		Files:       &handlers.FileHandler{Projects: projectSvc, Files: fileStore, Templates: tmpl, Log: log},
		Chat:        &handlers.ChatHandler{Projects: projectSvc, LLM: chat, Log: log},
		CORSOrigins: cfg.CORSOrigins,
		Log:         log,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", zap.String("addr", cfg.Addr), zap.String("environment", cfg.Environment))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})
	return g.Wait()
}
