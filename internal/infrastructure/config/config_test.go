package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configEnvKeys = []string{
	"STOCKFLOW_APP_NAME",
	"STOCKFLOW_APP_ENV",
	"STOCKFLOW_APP_PORT",
	"STOCKFLOW_DATABASE_DRIVER",
	"STOCKFLOW_DATABASE_HOST",
	"STOCKFLOW_DATABASE_PORT",
	"STOCKFLOW_DATABASE_PASSWORD",
	"STOCKFLOW_DATABASE_DBNAME",
	"STOCKFLOW_DATABASE_SSLMODE",
	"STOCKFLOW_DATABASE_MAX_OPEN_CONNS",
	"STOCKFLOW_DATABASE_MAX_IDLE_CONNS",
	"STOCKFLOW_AUTOMATION_INTERVAL",
	"STOCKFLOW_AUTOMATION_LEASE_DURATION",
	"STOCKFLOW_AUTOMATION_LATE_FEE_AMOUNT",
	"STOCKFLOW_AUTOMATION_TIMEZONE",
	"STOCKFLOW_AUTOMATION_CONCURRENCY",
	"STOCKFLOW_AUTOMATION_TRIGGER_SECRET",
	"STOCKFLOW_MAIL_HOST",
	"STOCKFLOW_MAIL_USERNAME",
	"STOCKFLOW_MAIL_PASSWORD",
	"STOCKFLOW_MAIL_FROM",
	"STOCKFLOW_MAIL_TLS_POLICY",
	"STOCKFLOW_STORAGE_ENABLED",
	"STOCKFLOW_STORAGE_BUCKET",
	"STOCKFLOW_TELEMETRY_DB_TRACING",
	"STOCKFLOW_TELEMETRY_SLOW_QUERY_THRESHOLD",
}

// clearEnv blanks every key the tests touch; viper ignores empty env values
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnvKeys {
		t.Setenv(k, "")
	}
}

func TestLoad(t *testing.T) {
	t.Run("loads default values when env vars not set", func(t *testing.T) {
		clearEnv(t)

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "stockflow-invoicing", cfg.App.Name)
		assert.Equal(t, "development", cfg.App.Env)
		assert.Equal(t, "8080", cfg.App.Port)
		assert.Equal(t, "postgres", cfg.Database.Driver)
		assert.Equal(t, "localhost", cfg.Database.Host)
		assert.Equal(t, 5432, cfg.Database.Port)
		assert.Equal(t, "stockflow", cfg.Database.DBName)
		assert.Equal(t, 25, cfg.Database.MaxOpenConns)
		assert.Equal(t, 5, cfg.Database.MaxIdleConns)

		assert.Equal(t, time.Hour, cfg.Automation.Interval)
		assert.Equal(t, 24*time.Hour, cfg.Automation.ReminderDelay)
		assert.Equal(t, 30*time.Minute, cfg.Automation.LeaseDuration)
		assert.Equal(t, "19", cfg.Automation.LateFeeAmount)
		assert.Equal(t, "USD", cfg.Automation.Currency)
		assert.Equal(t, 1, cfg.Automation.Concurrency)

		assert.Equal(t, 587, cfg.Mail.Port)
		assert.Equal(t, "mandatory", cfg.Mail.TLSPolicy)
		assert.False(t, cfg.Mail.IsConfigured())
		assert.Equal(t, "", cfg.Redis.Addr())

		assert.False(t, cfg.Telemetry.DBTracing)
		assert.False(t, cfg.Telemetry.DBLogFullSQL)
		assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.SlowQueryThresh)
	})

	t.Run("enables database tracing", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_TELEMETRY_DB_TRACING", "true")
		t.Setenv("STOCKFLOW_TELEMETRY_SLOW_QUERY_THRESHOLD", "50ms")

		cfg, err := Load()
		require.NoError(t, err)

		assert.True(t, cfg.Telemetry.DBTracing)
		assert.Equal(t, 50*time.Millisecond, cfg.Telemetry.SlowQueryThresh)
	})

	t.Run("loads values from environment variables with STOCKFLOW prefix", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_APP_NAME", "test-app")
		t.Setenv("STOCKFLOW_DATABASE_HOST", "testdb.local")
		t.Setenv("STOCKFLOW_DATABASE_PORT", "5433")
		t.Setenv("STOCKFLOW_AUTOMATION_INTERVAL", "5m")
		t.Setenv("STOCKFLOW_AUTOMATION_LATE_FEE_AMOUNT", "25.50")
		t.Setenv("STOCKFLOW_AUTOMATION_TIMEZONE", "Europe/Berlin")
		t.Setenv("STOCKFLOW_AUTOMATION_CONCURRENCY", "4")
		t.Setenv("STOCKFLOW_MAIL_HOST", "smtp.example.com")
		t.Setenv("STOCKFLOW_MAIL_USERNAME", "mailer")
		t.Setenv("STOCKFLOW_MAIL_PASSWORD", "secret")
		t.Setenv("STOCKFLOW_MAIL_FROM", "billing@example.com")

		cfg, err := Load()
		require.NoError(t, err)

		assert.Equal(t, "test-app", cfg.App.Name)
		assert.Equal(t, "testdb.local", cfg.Database.Host)
		assert.Equal(t, 5433, cfg.Database.Port)
		assert.Equal(t, 5*time.Minute, cfg.Automation.Interval)
		assert.Equal(t, 4, cfg.Automation.Concurrency)
		assert.True(t, cfg.Mail.IsConfigured())

		fee, err := cfg.Automation.LateFee()
		require.NoError(t, err)
		assert.Equal(t, "25.50", fee.StringFixed(2))

		loc, err := cfg.Automation.LoadLocation()
		require.NoError(t, err)
		assert.Equal(t, "Europe/Berlin", loc.String())
	})

	t.Run("validates MaxIdleConns cannot exceed MaxOpenConns", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_DATABASE_MAX_OPEN_CONNS", "10")
		t.Setenv("STOCKFLOW_DATABASE_MAX_IDLE_CONNS", "20")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max_idle_conns")
		assert.Contains(t, err.Error(), "cannot exceed")
	})

	t.Run("rejects unknown database driver", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_DATABASE_DRIVER", "mysql")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.driver")
	})

	t.Run("rejects non-decimal late fee", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_AUTOMATION_LATE_FEE_AMOUNT", "nineteen")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "late_fee_amount")
	})

	t.Run("rejects non-positive late fee", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_AUTOMATION_LATE_FEE_AMOUNT", "-1")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "late_fee_amount must be positive")
	})

	t.Run("rejects unknown timezone", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_AUTOMATION_TIMEZONE", "Mars/Olympus_Mons")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "automation.timezone")
	})

	t.Run("rejects unknown tls policy", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_MAIL_TLS_POLICY", "sometimes")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mail.tls_policy")
	})

	t.Run("requires bucket when storage enabled", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_STORAGE_ENABLED", "true")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.bucket")
	})
}

func TestLoad_ProductionValidation(t *testing.T) {
	setValidProductionBase := func(t *testing.T) {
		clearEnv(t)
		t.Setenv("STOCKFLOW_APP_ENV", "production")
		t.Setenv("STOCKFLOW_DATABASE_PASSWORD", "secure-password")
		t.Setenv("STOCKFLOW_DATABASE_SSLMODE", "require")
	}

	t.Run("passes validation with valid production config", func(t *testing.T) {
		setValidProductionBase(t)

		cfg, err := Load()
		require.NoError(t, err)
		assert.Equal(t, "production", cfg.App.Env)
	})

	t.Run("requires database.password in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKFLOW_DATABASE_PASSWORD", "")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required in production")
	})

	t.Run("requires SSL enabled in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKFLOW_DATABASE_SSLMODE", "disable")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.sslmode cannot be 'disable' in production")
	})

	t.Run("sqlite skips postgres checks", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKFLOW_DATABASE_DRIVER", "sqlite")
		t.Setenv("STOCKFLOW_DATABASE_PASSWORD", "")

		_, err := Load()
		require.NoError(t, err)
	})

	t.Run("requires long trigger secret in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKFLOW_AUTOMATION_TRIGGER_SECRET", "short-secret")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "trigger_secret must be at least 32 characters")
	})

	t.Run("rejects plaintext mail in production", func(t *testing.T) {
		setValidProductionBase(t)
		t.Setenv("STOCKFLOW_MAIL_TLS_POLICY", "none")

		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mail.tls_policy cannot be 'none'")
	})
}

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Run("generates valid postgres DSN", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "testuser",
			Password: "testpass",
			DBName:   "testdb",
			SSLMode:  "disable",
		}

		dsn := cfg.DSN()
		assert.Contains(t, dsn, "localhost")
		assert.Contains(t, dsn, "5432")
		assert.Contains(t, dsn, "testuser")
		assert.Contains(t, dsn, "testdb")
		assert.Contains(t, dsn, "sslmode=disable")
	})

	t.Run("escapes special characters in password", func(t *testing.T) {
		cfg := DatabaseConfig{
			Driver:   "postgres",
			Host:     "localhost",
			Port:     5432,
			User:     "user",
			Password: "pass@word#123",
			DBName:   "db",
			SSLMode:  "disable",
		}

		// URL-encoded password should be in the DSN
		assert.Contains(t, cfg.DSN(), "pass%40word%23123")
	})

	t.Run("sqlite DSN is the file path", func(t *testing.T) {
		cfg := DatabaseConfig{Driver: "sqlite", DBName: "/var/lib/stockflow/invoices.db"}
		assert.Equal(t, "/var/lib/stockflow/invoices.db", cfg.DSN())
	})
}

func TestMailConfig_IsConfigured(t *testing.T) {
	full := MailConfig{Host: "smtp.example.com", Username: "u", Password: "p", From: "billing@example.com"}
	assert.True(t, full.IsConfigured())

	missingPassword := full
	missingPassword.Password = ""
	assert.False(t, missingPassword.IsConfigured())
}
