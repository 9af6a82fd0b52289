package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/comigor/mentor-go/internal/history"
)

const sampleConfig = `
llm:
  base_url: https://api.example.com/v1/
  api_key: dummy
  model: gemini-test
  temperature: 0.2
  timeout: 30s
mentor:
  system_prompt: You are a test mentor.
  demo_session: s-test
  demo_questions: ["one", "two", "three"]
server:
  host: 0.0.0.0
  port: "9090"
history:
  backend: sqlite
log:
  level: debug
  format: text
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	require.NoError(t, err)
	_, err = tmp.WriteString(body)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())
	return tmp.Name()
}

// TestLoad_File verifies that Load correctly unmarshals every section from CONFIG_PATH.
func TestLoad_File(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "https://api.example.com/v1/", cfg.LLM.BaseURL)
	require.Equal(t, "dummy", cfg.LLM.APIKey)
	require.Equal(t, "gemini-test", cfg.LLM.Model)
	require.InDelta(t, 0.2, cfg.LLM.Temperature, 1e-6)
	require.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	require.Equal(t, "You are a test mentor.", cfg.Mentor.SystemPrompt)
	require.Equal(t, "s-test", cfg.Mentor.DemoSession)
	require.Equal(t, []string{"one", "two", "three"}, cfg.Mentor.DemoQuestions)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "sqlite", cfg.History.Backend)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("GOOGLE_API_KEY", "from-env")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, DefaultBaseURL, cfg.LLM.BaseURL)
	require.Equal(t, DefaultModel, cfg.LLM.Model)
	require.InDelta(t, 0.7, cfg.LLM.Temperature, 1e-6)
	require.Equal(t, "from-env", cfg.LLM.APIKey)
	require.Equal(t, DefaultSystemPrompt, cfg.Mentor.SystemPrompt)
	require.Equal(t, DefaultDemoSession, cfg.Mentor.DemoSession)
	require.Equal(t, DefaultDemoQuestions, cfg.Mentor.DemoQuestions)
	require.Equal(t, "memory", cfg.History.Backend)
}

func TestLoad_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_PATH", "")
	// gotenv.Load does not override variables that are already set.
	t.Setenv("GOOGLE_API_KEY", "")
	require.NoError(t, os.Unsetenv("GOOGLE_API_KEY"))
	require.NoError(t, os.WriteFile(".env", []byte("GOOGLE_API_KEY=dotenv-key\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "dotenv-key", cfg.LLM.APIKey)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", writeConfig(t, sampleConfig))
	t.Setenv("MENTOR_LLM_MODEL", "gemini-env")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gemini-env", cfg.LLM.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"defaults", Config{}, nil},
		{"temperature zero", Config{LLM: LLMConfig{Temperature: 0}}, nil},
		{"temperature upper bound", Config{LLM: LLMConfig{Temperature: 1}}, nil},
		{"temperature too high", Config{LLM: LLMConfig{Temperature: 1.5}}, ErrInvalidTemperature},
		{"temperature negative", Config{LLM: LLMConfig{Temperature: -0.1}}, ErrInvalidTemperature},
		{"sqlite backend", Config{History: HistoryConfig{Backend: "sqlite"}}, nil},
		{"unknown backend", Config{History: HistoryConfig{Backend: "redis"}}, history.ErrUnknownBackend},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestFromViper_InvalidTemperature(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("llm.temperature", 2)

	_, err := FromViper(v)
	require.ErrorIs(t, err, ErrInvalidTemperature)
}

func TestFromViper_UnknownBackend(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("history.backend", "redis")

	_, err := FromViper(v)
	require.ErrorIs(t, err, history.ErrUnknownBackend)
	require.ErrorContains(t, err, "redis")
}

func TestRequireAPIKey(t *testing.T) {
	require.ErrorIs(t, LLMConfig{APIKey: "  "}.RequireAPIKey(), ErrMissingAPIKey)
	require.NoError(t, LLMConfig{APIKey: "k"}.RequireAPIKey())
}
