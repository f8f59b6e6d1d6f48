package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schaermu/texsyncd/internal/activation"
	"github.com/schaermu/texsyncd/internal/config"
	"github.com/schaermu/texsyncd/internal/github"
	"github.com/schaermu/texsyncd/internal/sync"
	"github.com/schaermu/texsyncd/internal/webhook"
)

var (
	// Set by goreleaser
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile   string
	logLevel  string
	logFormat string

	// Command flags
	fullSync   bool
	dryRun     bool
	applyFixes bool
	assumeYes  bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "texsyncd",
	Short: "Mirror a texture pack subtree from a GitHub repository",
	Long: `texsyncd keeps a local texture directory converged with a subtree of a
GitHub repository without a git checkout. It downloads only changed files,
and textures disabled locally by the dash-prefix convention stay disabled
across updates.

It can run as a oneshot sync (via systemd timer) or as a long-running webhook
daemon that responds to GitHub push events.`,
	SilenceUsage: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize the local mirror with the remote repository",
	Long: `Sync resolves the remote head commit and applies the changes since the
last sync to the local mirror. The first run (or --full) downloads the whole
subtree; later runs fetch only the files that changed between commits.`,
	RunE: runSync,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check every local file against the remote manifest",
	Long: `Verify hashes every file in the mirror and compares it against the remote
tree at the current head commit, reporting corrupted, missing and orphaned
files. With --apply the discrepancies are fixed after confirmation.`,
	RunE: runVerify,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the mirror is up to date",
	RunE:  runStatus,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Serve starts a long-running HTTP server that listens for GitHub webhook
events and triggers syncs when the configured repository is updated. A
systemd-activated socket is used when present.`,
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("texsyncd %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/texsyncd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	syncCmd.Flags().BoolVar(&fullSync, "full", false, "force a full sync instead of an incremental one")
	syncCmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without making changes")

	verifyCmd.Flags().BoolVar(&applyFixes, "apply", false, "fix the reported discrepancies")
	verifyCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "apply fixes without asking for confirmation")

	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := newEngine(cfg, logger, dryRun)
	if err != nil {
		return err
	}

	logger.Info("starting sync operation")
	result, err := engine.Run(ctx, fullSync)
	if err != nil {
		logger.Error("sync failed", "error", err)
		return err
	}

	fmt.Printf("Synced to %s: %d downloaded, %d deleted, %d renamed, %d skipped\n",
		shortSHA(result.Commit), result.Downloaded, result.Deleted, result.Renamed, result.Skipped)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := newEngine(cfg, logger, false)
	if err != nil {
		return err
	}

	report, err := engine.Verify(ctx)
	if err != nil {
		logger.Error("verification failed", "error", err)
		return err
	}

	if !report.HasDiscrepancies() {
		fmt.Println("Mirror matches the remote, no discrepancies found.")
		return nil
	}

	for _, d := range report.Downloads {
		fmt.Printf("  missing or corrupted: %s\n", d.Path)
	}
	for _, p := range report.Deletes {
		fmt.Printf("  orphaned: %s\n", p)
	}
	fmt.Printf("%d files to download, %d files to delete\n",
		len(report.Downloads), len(report.Deletes))

	if !applyFixes {
		fmt.Println("Run again with --apply to fix them.")
		return nil
	}

	if !assumeYes && !confirm("Apply these fixes?") {
		fmt.Println("Aborted.")
		return nil
	}

	result, err := engine.ApplyReport(ctx, report)
	if err != nil {
		logger.Error("failed to apply fixes", "error", err)
		return err
	}
	fmt.Printf("Fixed: %d downloaded, %d deleted\n", result.Downloaded, result.Deleted)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	engine, err := newEngine(cfg, logger, false)
	if err != nil {
		return err
	}

	status, err := engine.CheckStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Remote head: %s (%s)\n", shortSHA(status.LatestCommit), status.LatestCommitDate)
	if status.BaselineCommit == "" {
		fmt.Println("Local mirror: never synced")
	} else {
		fmt.Printf("Local mirror: %s\n", shortSHA(status.BaselineCommit))
	}
	if status.HasChanges {
		fmt.Println("Updates are available, run 'texsyncd sync' to apply them.")
	} else {
		fmt.Println("Mirror is up to date.")
	}
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	logger := setupLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Serve.Enabled {
		return fmt.Errorf("serve is not enabled in the configuration")
	}

	token, err := cfg.Token()
	if err != nil {
		return err
	}
	remote := github.NewClient(cfg.Repo.Owner, cfg.Repo.Name, token, logger)
	store := sync.NewFileStore(cfg.StateFilePath())

	server, err := webhook.NewServer(cfg, remote, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create webhook server: %w", err)
	}

	ln, err := activation.Listener()
	if err != nil {
		return fmt.Errorf("socket activation failed: %w", err)
	}

	return server.Start(ctx, ln)
}

// newEngine wires the sync engine from the configuration, with progress
// printed to stderr.
func newEngine(cfg *config.Config, logger *slog.Logger, dryRun bool) (*sync.Engine, error) {
	token, err := cfg.Token()
	if err != nil {
		return nil, err
	}

	remote := github.NewClient(cfg.Repo.Owner, cfg.Repo.Name, token, logger)
	store := sync.NewFileStore(cfg.StateFilePath())
	return sync.NewEngine(cfg, remote, store, logger, printProgress, dryRun), nil
}

// printProgress renders one progress notification per line.
func printProgress(p sync.Progress) {
	if p.Total > 0 {
		fmt.Fprintf(os.Stderr, "[%s] (%d/%d) %s\n", p.Stage, p.Current, p.Total, p.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "[%s] %s\n", p.Stage, p.Message)
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func shortSHA(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func setupLogger() *slog.Logger {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if logFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		configPath = fmt.Sprintf("%s/.config/texsyncd/config.yaml", home)
	}

	logger.Info("loading configuration", "path", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger.Debug("configuration loaded",
		"repo", cfg.Repo.Owner+"/"+cfg.Repo.Name,
		"ref", cfg.Repo.Ref,
		"sparse_path", cfg.Repo.SparsePath,
		"mirror_root", cfg.MirrorRoot(),
		"state_dir", cfg.Paths.StateDir)

	return cfg, nil
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		cancel()
	}()

	return ctx, cancel
}
