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
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "minishop-storefront", cfg.Service.Name)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, AmountPolicyReject, cfg.Checkout.AmountPolicy)
	assert.Equal(t, 3*time.Minute, cfg.NETS.QRTimeout)
	assert.Equal(t, 5, cfg.HitPay.ConfirmAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.HitPay.ConfirmDelay)
	assert.Equal(t, 30*time.Minute, cfg.Checkout.SelectionTTL)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SERVICE_NAME", "shop-a")
	t.Setenv("ENV", "prod")
	t.Setenv("HITPAY_CONFIRM_DELAY", "250ms")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CHECKOUT_AMOUNT_POLICY", "log")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "shop-a", cfg.Service.Name)
	assert.Equal(t, "prod", cfg.Service.Env)
	assert.Equal(t, 250*time.Millisecond, cfg.HitPay.ConfirmDelay)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, AmountPolicyLog, cfg.Checkout.AmountPolicy)
}

func TestLoadYAMLAndDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yaml := []byte("database:\n  driver: mysql\n  dsn: user:pw@tcp(db:3306)/shop?parseTime=true\nnets:\n  qr_timeout: 90s\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.env"), []byte("AUTH_JWT_SECRET=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("AUTH_JWT_SECRET") })

	cfg, err := Load(filepath.Join(dir, "config.yaml"), filepath.Join(dir, "test.env"))
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 90*time.Second, cfg.NETS.QRTimeout)
	assert.Equal(t, "from-dotenv", cfg.Auth.JWTSecret)
}

func TestValidateRejectsUnsupportedValues(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("CHECKOUT_AMOUNT_POLICY", "ignore")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "checkout.amount_policy")
}
