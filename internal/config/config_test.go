package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: "8080"},
		Database: DatabaseConfig{Driver: "mysql", Host: "localhost", User: "test", DBName: "test"},
		LLM:      LLMConfig{APIKey: "sk-test"},
		ERP:      ERPConfig{BaseURL: "http://erp.local"},
		Duplicate: DuplicateConfig{
			WindowDays:        30,
			ScanLimit:         10,
			ProbableThreshold: 0.7,
			PossibleThreshold: 0.8,
		},
	}
}

func TestConfigValidation(t *testing.T) {
	assert.NoError(t, validConfig().Validate())

	invalid := validConfig()
	invalid.Server.Port = ""
	assert.Error(t, invalid.Validate())

	sqlite := validConfig()
	sqlite.Database = DatabaseConfig{Driver: "sqlite"}
	assert.Error(t, sqlite.Validate())
	sqlite.Database.Path = "quotes.db"
	assert.NoError(t, sqlite.Validate())

	inbox := validConfig()
	inbox.Inbox = InboxConfig{Enabled: true, Provider: "imap", IntervalMinutes: 5}
	assert.Error(t, inbox.Validate())
	inbox.Inbox.IMAPUser = "user"
	inbox.Inbox.IMAPPassword = "secret"
	assert.NoError(t, inbox.Validate())

	limited := validConfig()
	limited.Server.RateLimit = 5
	assert.Error(t, limited.Validate())
	limited.Server.RateBurst = 10
	assert.NoError(t, limited.Validate())

	thresholds := validConfig()
	thresholds.Duplicate.PossibleThreshold = 1.5
	assert.Error(t, thresholds.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Driver:   "mysql",
		Host:     "localhost",
		Port:     3306,
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	}

	expected := "testuser:testpass@tcp(localhost:3306)/testdb?charset=utf8mb4&parseTime=True&loc=Local"
	assert.Equal(t, expected, cfg.GetDSN())

	cfg.Driver = "sqlite"
	cfg.Path = "/tmp/quotes.db"
	assert.Equal(t, "/tmp/quotes.db", cfg.GetDSN())
}

func TestLoadConfigDefaultsAndEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ERP_BASE_URL", "http://erp.internal")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://erp.internal", cfg.ERP.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30, cfg.Duplicate.WindowDays)
	assert.Equal(t, 10, cfg.Duplicate.ScanLimit)
	assert.InDelta(t, 0.7, cfg.Duplicate.ProbableThreshold, 1e-9)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.InDelta(t, 20, cfg.Server.RateLimit, 1e-9)
	assert.Equal(t, 40, cfg.Server.RateBurst)
	assert.InDelta(t, 10, cfg.ERP.RequestsPerSecond, 1e-9)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ERP_API_KEY=from-dotenv\n"), 0o600))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
		os.Unsetenv("ERP_API_KEY")
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.ERP.APIKey)
}
