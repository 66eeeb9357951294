package memory_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestKeyedLockerSerializesSameKey(t *testing.T) {
	l := memory.NewKeyedLocker()
	ctx := context.Background()

	var inside, maxInside atomic.Int32
	var g errgroup.Group
	for range 20 {
		g.Go(func() error {
			unlock, err := l.Lock(ctx, "session-1")
			if err != nil {
				return err
			}
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 1, maxInside.Load())
}

func TestKeyedLockerHonoursContext(t *testing.T) {
	l := memory.NewKeyedLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := l.Lock(context.Background(), "other")
	require.NoError(t, err)
	other()
}
