package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/reviewpipe/internal/output"
)

// testEnv sets up isolated config dir, viper, and output for testing.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	origFunc := configDirFunc
	configDirFunc = func() (string, error) { return dir, nil }
	t.Cleanup(func() { configDirFunc = origFunc })

	viper.Reset()
	setDefaults(dir)
	t.Cleanup(viper.Reset)

	ui = &output.UI{Out: &bytes.Buffer{}, ErrOut: &bytes.Buffer{}}
	dataStore = nil

	return dir
}

func TestConfigInit_CreatesFile(t *testing.T) {
	dir := testEnv(t)

	require.NoError(t, configInitRun())

	cfgPath := filepath.Join(dir, "config.yaml")
	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "reviewpipe configuration")
	assert.Contains(t, string(data), "thresholds:")

	// The generated file is valid yaml that round-trips the defaults.
	viper.SetConfigFile(cfgPath)
	require.NoError(t, viper.ReadInConfig())
	assert.Equal(t, 7.0, viper.GetFloat64("thresholds.lint"))
	assert.Equal(t, 0.8, viper.GetFloat64("thresholds.ai_confidence"))
	assert.Equal(t, []string{".py", ".go"}, viper.GetStringSlice("analysis.extensions"))
	assert.Equal(t, "5m", viper.GetString("analysis.task_timeout"))
	assert.Equal(t, 587, viper.GetInt("email.smtp_port"))
	assert.False(t, viper.GetBool("email.enabled"))
	assert.True(t, viper.GetBool("history.enabled"))
}

func TestConfigInit_Overwrite(t *testing.T) {
	tests := []struct {
		name    string
		force   bool
		wantErr string
	}{
		{"refuses without force", false, "already exists"},
		{"overwrites with force", true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := testEnv(t)
			cfgPath := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(cfgPath, []byte("existing"), 0o644))

			configForce = tt.force
			t.Cleanup(func() { configForce = false })

			err := configInitRun()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			data, err := os.ReadFile(cfgPath)
			require.NoError(t, err)
			assert.Contains(t, string(data), "reviewpipe configuration")
		})
	}
}

func TestConfigInit_DryRun(t *testing.T) {
	dir := testEnv(t)
	dryRun = true
	ui.DryRun = true
	t.Cleanup(func() { dryRun = false })

	require.NoError(t, configInitRun())

	_, err := os.Stat(filepath.Join(dir, "config.yaml"))
	assert.True(t, os.IsNotExist(err), "config file should not exist in dry-run mode")
}

func TestConfigShow_ListsReviewKeys(t *testing.T) {
	testEnv(t)
	out := ui.Out.(*bytes.Buffer)

	require.NoError(t, configShowRun())
	text := out.String()
	assert.Contains(t, text, "Config file: (none)")
	for _, key := range []string{"thresholds.lint", "analysis.task_timeout", "anthropic.model", "email.smtp_port", "history.enabled"} {
		assert.Contains(t, text, key)
	}
	assert.Contains(t, text, "claude-haiku-4-5-20251001")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	testEnv(t)
	out := ui.Out.(*bytes.Buffer)
	viper.Set("anthropic.api_key", "sk-ant-very-secret")
	viper.Set("email.password", "hunter2")

	require.NoError(t, configShowRun())
	text := out.String()
	assert.NotContains(t, text, "sk-ant-very-secret")
	assert.NotContains(t, text, "hunter2")
	assert.Contains(t, text, "********")
}

func TestIsSecretKey(t *testing.T) {
	assert.True(t, isSecretKey("anthropic.api_key"))
	assert.True(t, isSecretKey("email.password"))
	assert.False(t, isSecretKey("email.smtp_server"))
	assert.False(t, isSecretKey("thresholds.security"))
}

func TestConfig_EnvOverridesThresholds(t *testing.T) {
	testEnv(t)
	bindEnv()
	t.Setenv("REVIEWPIPE_THRESHOLDS_LINT", "9.5")
	t.Setenv("REVIEWPIPE_THRESHOLDS_COVERAGE", "60")
	t.Setenv("REVIEWPIPE_ANALYSIS_TASK_TIMEOUT", "90s")

	th := thresholdsFromConfig()
	assert.Equal(t, 9.5, th.Lint)
	assert.Equal(t, 60.0, th.Coverage)
	assert.Equal(t, 0.8, th.AIConfidence, "unset keys keep their defaults")
	assert.Equal(t, 90*time.Second, taskTimeoutFromConfig())

	assert.Contains(t, detectSource("thresholds.lint", "REVIEWPIPE_THRESHOLDS_LINT", map[string]bool{}), "env")
}

func TestConfig_EnvExtensionsCommaList(t *testing.T) {
	testEnv(t)
	bindEnv()
	t.Setenv("REVIEWPIPE_ANALYSIS_EXTENSIONS", ".py,.rs, .go")

	assert.Equal(t, []string{".py", ".rs", ".go"}, configuredExtensions())
}

func TestConfigEdit_NoEditor(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "")
	t.Setenv("VISUAL", "")

	err := configEditRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "$EDITOR is not set")
}

func TestConfigEdit_NoConfigFile(t *testing.T) {
	testEnv(t)
	t.Setenv("EDITOR", "echo")

	err := configEditRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestDetectSource(t *testing.T) {
	fileValues := map[string]bool{"thresholds.lint": true}
	t.Setenv("REVIEWPIPE_EMAIL_ENABLED", "true")

	assert.Contains(t, detectSource("email.enabled", "REVIEWPIPE_EMAIL_ENABLED", fileValues), "env")
	assert.Contains(t, detectSource("thresholds.lint", "REVIEWPIPE_THRESHOLDS_LINT", fileValues), "file")
	assert.Contains(t, detectSource("ai.timeout", "REVIEWPIPE_AI_TIMEOUT", fileValues), "default")
}

func TestFlattenKeys(t *testing.T) {
	input := map[string]any{
		"history": map[string]any{"enabled": true},
		"thresholds": map[string]any{
			"lint":     7.0,
			"coverage": 80,
		},
		"db_path": "/tmp/reviews.db",
	}

	result := make(map[string]bool)
	flattenKeys("", input, result)

	assert.True(t, result["db_path"])
	assert.True(t, result["history.enabled"])
	assert.True(t, result["thresholds.lint"])
	assert.True(t, result["thresholds.coverage"])
	assert.False(t, result["thresholds"])
}
