package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/reviewpipe/internal/output"
	"github.com/joescharf/reviewpipe/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "reviewpipe",
	Short: "Automated multi-analyzer code review for pull requests and local changes",
	Long: `reviewpipe reviews a change set with five analyzers running in parallel
(security, quality, coverage, AI review, documentation), aggregates their
results, and either approves the change or escalates it to a human.

Reviews can target a GitHub pull request, a list of local files, or the
diff of a local git checkout against a base branch.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/reviewpipe/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "reviewpipe")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	bindEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "reviewpipe"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// bindEnv maps REVIEWPIPE_SECTION_KEY variables onto section.key.
func bindEnv() {
	viper.SetEnvPrefix("REVIEWPIPE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// setDefaults registers every config key with its default value.
func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("db_path", filepath.Join(stateDir, "reviews.db"))

	viper.SetDefault("thresholds.lint", 7.0)
	viper.SetDefault("thresholds.coverage", 80.0)
	viper.SetDefault("thresholds.ai_confidence", 0.8)
	viper.SetDefault("thresholds.security", 8.0)
	viper.SetDefault("thresholds.documentation", 70.0)

	viper.SetDefault("analysis.task_timeout", "5m")
	viper.SetDefault("analysis.max_parallel", 0)
	viper.SetDefault("analysis.extensions", []string{".py", ".go"})

	viper.SetDefault("quality.pylint_path", "pylint")
	viper.SetDefault("quality.lint_timeout", "30s")

	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("ai.max_concurrent", 4)
	viper.SetDefault("ai.requests_per_minute", 50)
	viper.SetDefault("ai.timeout", "60s")

	viper.SetDefault("email.enabled", false)
	viper.SetDefault("email.smtp_server", "")
	viper.SetDefault("email.smtp_port", 587)
	viper.SetDefault("email.from", "")
	viper.SetDefault("email.password", "")
	viper.SetDefault("email.to", []string{})

	viper.SetDefault("github.hostname", "")
	viper.SetDefault("history.enabled", true)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Initialize store lazily, only when commands actually need it.
	// This allows config/version commands to run without a db.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}
