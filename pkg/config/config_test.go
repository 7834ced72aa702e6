package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "gradebook", cfg.Database.Name)
	assert.Equal(t, 10*time.Minute, cfg.Cache.RollupTTL)
	assert.Equal(t, time.Minute, cfg.Cache.DashboardTTL)
	assert.Equal(t, "openai", cfg.Assistant.Provider)
	assert.Equal(t, 5, cfg.Assistant.MaxRounds)
}

func TestLoadReadsEnvironment(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ASSISTANT_PROVIDER", "Ollama")
	t.Setenv("ROLLUP_CACHE_TTL", "90s")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("REPORTS_CSV_DELIMITER", ";")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ollama", cfg.Assistant.Provider)
	assert.Equal(t, 90*time.Second, cfg.Cache.RollupTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, ';', cfg.Reports.CSVDelimiter)
}

func TestLoadFallsBackOnMalformedDurations(t *testing.T) {
	chdirTemp(t)
	t.Setenv("JWT_EXPIRATION", "soon")
	t.Setenv("REPORTS_CLEANUP_INTERVAL", "-5m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Equal(t, time.Hour, cfg.Reports.CleanupInterval)
}

func TestLoadRefusesDevelopmentSecretsInProduction(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ENV", "Production")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET still has its development value")
	assert.Contains(t, err.Error(), "REPORTS_SIGNED_URL_SECRET")

	t.Setenv("JWT_SECRET", "0f1e2d3c4b5a")
	t.Setenv("REPORTS_SIGNED_URL_SECRET", "a5b4c3d2e1f0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, EnvProduction, cfg.Env)
}

func TestValidate(t *testing.T) {
	valid := Config{Port: 8080, JWT: JWTConfig{Secret: "s"}, Reports: ReportsConfig{SignedURLSecret: "r"}}
	require.NoError(t, valid.Validate())

	cases := map[string]func(*Config){
		"port":        func(c *Config) { c.Port = 70000 },
		"jwt secret":  func(c *Config) { c.JWT.Secret = "" },
		"url secret":  func(c *Config) { c.Reports.SignedURLSecret = "" },
		"tool rounds": func(c *Config) { c.Assistant = AssistantConfig{Enabled: true} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := chdirTemp(t)
	// godotenv never overrides variables that already exist, so these
	// keep the file's values out of the process environment.
	t.Setenv("PORT", "")
	t.Setenv("DB_NAME", "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("PORT=9090\nDB_NAME=grades_test\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "grades_test", cfg.Database.Name)
}

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) }) //nolint:errcheck
	return dir
}
