package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whoknows-ai/whoknows-go/internal/answering"
	"github.com/whoknows-ai/whoknows-go/internal/chat"
	"github.com/whoknows-ai/whoknows-go/internal/config"
	"github.com/whoknows-ai/whoknows-go/internal/history"
	"github.com/whoknows-ai/whoknows-go/internal/logger"
	"github.com/whoknows-ai/whoknows-go/internal/orchestrator"
	"github.com/whoknows-ai/whoknows-go/internal/reveal"
	"github.com/whoknows-ai/whoknows-go/internal/session"
	"github.com/whoknows-ai/whoknows-go/internal/settings"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "whoknows",
	Short: "WhoKnows? - chat with your company's documentation",
	Long: `WhoKnows? is the terminal client for the WhoKnows answering service.

Ask questions about teams, architecture and processes; answers come back with
document sources and a confidence estimate. Conversations are kept in a local
bounded history you can reopen at any time.

Run without arguments to start the interactive chat.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShell()
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the answering service health endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := loadClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Service.Timeout)
		defer cancel()

		h, err := client.Health(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("status:        %s\n", h.Status)
		fmt.Printf("search engine: %s\n", h.SearchEngine)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the answering service's index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, client, err := loadClient()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Service.Timeout)
		defer cancel()

		st, err := client.Stats(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("search mode:  %s\n", st.SearchMode)
		fmt.Printf("index loaded: %t\n", st.IndexLoaded)
		if st.IndexLoaded {
			fmt.Printf("chunks:       %d\n", st.TotalChunks)
			fmt.Printf("documents:    %d\n", st.TotalDocuments)
		}
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List conversations saved on this machine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		applyLogConfig(cfg)

		archive, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer archive.Close()

		sessions, err := archive.Load()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no saved conversations")
			return nil
		}
		for i, s := range sessions {
			fmt.Printf("%2d. %s  (%d messages, %s)\n",
				i+1, s.Title, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}

func loadClient() (*config.Config, *answering.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	applyLogConfig(cfg)
	return cfg, answering.NewClient(cfg.Service), nil
}

func applyLogConfig(cfg *config.Config) {
	logger.SetFormat(cfg.Log.Format)
	logger.SetLevel(cfg.Log.Level)
	if verbose {
		logger.SetLevel("debug")
	}
}

func runShell() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	applyLogConfig(cfg)

	// History is best-effort: a broken database file downgrades the run to
	// memory-only instead of refusing to start.
	var persister session.Persister
	var initial []chat.Session
	archive, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.L.Warn("history unavailable, continuing without persistence",
			"path", cfg.History.Path, "error", err)
	} else {
		defer archive.Close()
		persister = archive
		if initial, err = archive.Load(); err != nil {
			logger.L.Warn("failed to load saved history", "error", err)
		}
	}

	store := session.New(initial, persister)

	prefs, err := settings.Open(cfg.Settings.Path)
	if err != nil {
		logger.L.Warn("settings unavailable", "path", cfg.Settings.Path, "error", err)
		prefs = nil
	} else {
		defer prefs.Close()
	}

	client := answering.NewClient(cfg.Service)

	sh := newShell(store, prefs, os.Stdin, os.Stdout)
	rev := reveal.NewEngine(cfg.Reveal.Interval, sh.typewrite, store.Message)
	defer rev.Close()

	sh.attach(orchestrator.New(store, client, rev), rev)
	return sh.run()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
