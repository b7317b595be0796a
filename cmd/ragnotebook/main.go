package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ragnotebook/internal/backend"
	"ragnotebook/internal/chat"
	"ragnotebook/internal/config"
	"ragnotebook/internal/documents"
	"ragnotebook/internal/logger"
	"ragnotebook/internal/probe"
	"ragnotebook/internal/settings"
	"ragnotebook/internal/tui"
)

var cfgPath string

// app holds the assembled components for one invocation.
type app struct {
	cfg      *config.AppConfig
	log      logger.ILogger
	client   *backend.Client
	settings *settings.Store
	docs     *documents.Registry
	chat     *chat.Session
}

func newApp(console bool) (*app, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		FilePath:   cfg.Logging.File,
		Level:      cfg.Logging.Level,
		Console:    console,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	client := backend.New(cfg.Backend.URL,
		backend.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Backend.TimeoutSecs) * time.Second}),
		backend.WithRateLimit(cfg.Backend.RequestsPerSecond),
		backend.WithLogger(log),
	)
	prober := probe.New(nil, time.Duration(cfg.Probe.TimeoutSecs)*time.Second)
	store := settings.New(cfg.Configuration(), client.BaseURL(), prober, log)

	return &app{
		cfg:      cfg,
		log:      log,
		client:   client,
		settings: store,
		docs:     documents.New(store, client, documents.WithLogger(log)),
		chat:     chat.New(store, client, chat.WithTopK(cfg.Chat.TopK), chat.WithLogger(log)),
	}, nil
}

func (a *app) close() { _ = a.log.Sync() }

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "ragnotebook",
		Short: "Chat with your documents through a RAG backend",
		Long: `ragnotebook is a terminal client for a retrieval-augmented generation backend.
Without a subcommand it opens the interactive notebook: upload documents,
ask questions about them and manage the LLM and vector store settings.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.close()
			a.log.Info("main", "starting notebook", map[string]interface{}{"backend": a.client.BaseURL()})

			m := tui.New(cmd.Context(), a.settings, a.docs, a.chat)
			_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context())).Run()
			return err
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		"Path to YAML config file (default ./config.yaml or ~/.config/ragnotebook/config.yaml)")

	rootCmd.AddCommand(
		newAskCmd(),
		newUploadCmd(),
		newDocsCmd(),
		newTestCmd(),
		newStatusCmd(),
		newConfigCmd(),
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
