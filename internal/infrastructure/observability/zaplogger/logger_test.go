package zaplogger_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
)

func TestFieldsRenderMoneyAndErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := zaplogger.Wrap(zap.New(core)).With(observability.F("order_id", "o-1"))

	log.Info("order_total",
		observability.F("total", decimal.RequireFromString("540.50")),
		observability.F("cause", errors.New("declined")),
	)
	log.Debug("dropped")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "o-1", fields["order_id"])
	assert.Equal(t, "540.5", fields["total"])
	assert.Equal(t, "declined", fields["cause"])
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "checkout.log")
	log, err := zaplogger.New(zaplogger.Options{
		Level:  "warn",
		File:   path,
		Fields: []observability.Field{observability.F("service", "checkout")},
	})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("stock_alert_raised")
	_ = log.(observability.Flusher).Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"msg":"stock_alert_raised"`)
	assert.Contains(t, string(raw), `"service":"checkout"`)
	assert.NotContains(t, string(raw), "hidden")
}
