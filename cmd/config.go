package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/joescharf/reviewpipe/internal/review"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "reviewpipe"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage reviewpipe configuration.

Running bare 'reviewpipe config' is the same as 'reviewpipe config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# reviewpipe configuration
# See: reviewpipe config show (for effective values and sources)

# State/data directory (default: ~/.config/reviewpipe)
# state_dir: {{ .StateDir }}

# Review history database (default: ~/.config/reviewpipe/reviews.db)
# db_path: {{ .DBPath }}

# Minimums a change must meet to be approved without a human
thresholds:
  lint: {{ .Thresholds.Lint }}
  coverage: {{ .Thresholds.Coverage }}
  ai_confidence: {{ .Thresholds.AIConfidence }}
  security: {{ .Thresholds.Security }}
  documentation: {{ .Thresholds.Documentation }}

analysis:
  # Deadline after which a silent analyzer is completed with default results.
  # 0 disables forced completion.
  task_timeout: "{{ .TaskTimeout }}"
  # Maximum analyzers running at once (0 = no limit)
  max_parallel: {{ .MaxParallel }}
  # File extensions to review
  extensions: [{{ .Extensions }}]

quality:
  pylint_path: "{{ .PylintPath }}"
  lint_timeout: "{{ .LintTimeout }}"

# AI review (API key may also come from ANTHROPIC_API_KEY)
anthropic:
  model: "{{ .AnthropicModel }}"
  # api_key: ""

ai:
  max_concurrent: {{ .AIMaxConcurrent }}
  requests_per_minute: {{ .AIRequestsPerMinute }}
  timeout: "{{ .AITimeout }}"

# Email notifications (STARTTLS on the submission port)
email:
  enabled: {{ .EmailEnabled }}
  smtp_server: "{{ .SMTPServer }}"
  smtp_port: {{ .SMTPPort }}
  from: "{{ .EmailFrom }}"
  # password: ""
  to: []

github:
  # GitHub Enterprise hostname passed to gh (empty = github.com)
  hostname: "{{ .GitHubHostname }}"

history:
  enabled: {{ .HistoryEnabled }}
`

type configTemplateData struct {
	StateDir            string
	DBPath              string
	Thresholds          review.Thresholds
	TaskTimeout         string
	MaxParallel         int
	Extensions          string
	PylintPath          string
	LintTimeout         string
	AnthropicModel      string
	AIMaxConcurrent     int
	AIRequestsPerMinute int
	AITimeout           string
	EmailEnabled        bool
	SMTPServer          string
	SMTPPort            int
	EmailFrom           string
	GitHubHostname      string
	HistoryEnabled      bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	var quoted []string
	for _, e := range configuredExtensions() {
		quoted = append(quoted, fmt.Sprintf("%q", e))
	}
	data := configTemplateData{
		StateDir:            viper.GetString("state_dir"),
		DBPath:              viper.GetString("db_path"),
		Thresholds:          thresholdsFromConfig(),
		TaskTimeout:         viper.GetString("analysis.task_timeout"),
		MaxParallel:         viper.GetInt("analysis.max_parallel"),
		Extensions:          strings.Join(quoted, ", "),
		PylintPath:          viper.GetString("quality.pylint_path"),
		LintTimeout:         viper.GetString("quality.lint_timeout"),
		AnthropicModel:      viper.GetString("anthropic.model"),
		AIMaxConcurrent:     viper.GetInt("ai.max_concurrent"),
		AIRequestsPerMinute: viper.GetInt("ai.requests_per_minute"),
		AITimeout:           viper.GetString("ai.timeout"),
		EmailEnabled:        viper.GetBool("email.enabled"),
		SMTPServer:          viper.GetString("email.smtp_server"),
		SMTPPort:            viper.GetInt("email.smtp_port"),
		EmailFrom:           viper.GetString("email.from"),
		GitHubHostname:      viper.GetString("github.hostname"),
		HistoryEnabled:      viper.GetBool("history.enabled"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "REVIEWPIPE_STATE_DIR"},
	{Key: "db_path", EnvVar: "REVIEWPIPE_DB_PATH"},
	{Key: "thresholds.lint", EnvVar: "REVIEWPIPE_THRESHOLDS_LINT"},
	{Key: "thresholds.coverage", EnvVar: "REVIEWPIPE_THRESHOLDS_COVERAGE"},
	{Key: "thresholds.ai_confidence", EnvVar: "REVIEWPIPE_THRESHOLDS_AI_CONFIDENCE"},
	{Key: "thresholds.security", EnvVar: "REVIEWPIPE_THRESHOLDS_SECURITY"},
	{Key: "thresholds.documentation", EnvVar: "REVIEWPIPE_THRESHOLDS_DOCUMENTATION"},
	{Key: "analysis.task_timeout", EnvVar: "REVIEWPIPE_ANALYSIS_TASK_TIMEOUT"},
	{Key: "analysis.max_parallel", EnvVar: "REVIEWPIPE_ANALYSIS_MAX_PARALLEL"},
	{Key: "analysis.extensions", EnvVar: "REVIEWPIPE_ANALYSIS_EXTENSIONS"},
	{Key: "quality.pylint_path", EnvVar: "REVIEWPIPE_QUALITY_PYLINT_PATH"},
	{Key: "quality.lint_timeout", EnvVar: "REVIEWPIPE_QUALITY_LINT_TIMEOUT"},
	{Key: "anthropic.model", EnvVar: "REVIEWPIPE_ANTHROPIC_MODEL"},
	{Key: "anthropic.api_key", EnvVar: "REVIEWPIPE_ANTHROPIC_API_KEY"},
	{Key: "ai.max_concurrent", EnvVar: "REVIEWPIPE_AI_MAX_CONCURRENT"},
	{Key: "ai.requests_per_minute", EnvVar: "REVIEWPIPE_AI_REQUESTS_PER_MINUTE"},
	{Key: "ai.timeout", EnvVar: "REVIEWPIPE_AI_TIMEOUT"},
	{Key: "email.enabled", EnvVar: "REVIEWPIPE_EMAIL_ENABLED"},
	{Key: "email.smtp_server", EnvVar: "REVIEWPIPE_EMAIL_SMTP_SERVER"},
	{Key: "email.smtp_port", EnvVar: "REVIEWPIPE_EMAIL_SMTP_PORT"},
	{Key: "email.from", EnvVar: "REVIEWPIPE_EMAIL_FROM"},
	{Key: "email.password", EnvVar: "REVIEWPIPE_EMAIL_PASSWORD"},
	{Key: "email.to", EnvVar: "REVIEWPIPE_EMAIL_TO"},
	{Key: "github.hostname", EnvVar: "REVIEWPIPE_GITHUB_HOSTNAME"},
	{Key: "history.enabled", EnvVar: "REVIEWPIPE_HISTORY_ENABLED"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		if isSecretKey(k.Key) && viper.GetString(k.Key) != "" {
			val = "********"
		}
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-28s %v  %s\n", k.Key, val, source)
	}

	return nil
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "password")
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'reviewpipe config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
