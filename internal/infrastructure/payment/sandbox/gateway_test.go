package sandbox_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/payment"
	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/payment/sandbox"
)

type collector struct {
	mu      sync.Mutex
	results []payment.CallbackResult
	failN   int
}

func (c *collector) sink(_ context.Context, res payment.CallbackResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failN > 0 {
		c.failN--
		return errors.New("unknown reference")
	}
	c.results = append(c.results, res)
	return nil
}

func charge(t *testing.T, g *sandbox.Gateway) string {
	t.Helper()
	init, err := g.Initiate(context.Background(), payment.InitiateRequest{
		Reference: "o-1", Amount: decimal.NewFromInt(100), Destination: "254712345678",
	})
	require.NoError(t, err)
	return init.ExternalReference
}

func TestSandboxReportsSuccess(t *testing.T) {
	g := sandbox.New(sandbox.Options{SuccessRate: 1}, nil)
	c := &collector{}
	g.SetSink(c.sink)

	ref := charge(t, g)
	g.Wait()

	assert.True(t, strings.HasPrefix(ref, "sandbox_"))
	require.Len(t, c.results, 1)
	assert.Equal(t, ref, c.results[0].ExternalReference)
	assert.True(t, c.results[0].Succeeded)
	assert.NotEmpty(t, c.results[0].Receipt)
}

func TestSandboxReportsDeclineAndRetriesSink(t *testing.T) {
	g := sandbox.New(sandbox.Options{SuccessRate: 0}, nil)
	c := &collector{failN: 2}
	g.SetSink(c.sink)

	charge(t, g)
	g.Wait()

	require.Len(t, c.results, 1)
	assert.False(t, c.results[0].Succeeded)
	assert.Equal(t, "1032", c.results[0].ResultCode)
}

func TestSandboxRejectsBadRequests(t *testing.T) {
	g := sandbox.New(sandbox.Options{}, nil)
	_, err := g.Initiate(context.Background(), payment.InitiateRequest{Reference: "o-1", Amount: decimal.Zero})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Initiate(ctx, payment.InitiateRequest{Reference: "o-1", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, context.Canceled)
}
