package cart

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
)

const cartKey = "cart"

// Store reads and writes the cart under its own key in the session scope. It does not lock;
// callers hold the session lock around load/modify/save.
type Store struct {
	sessions session.Store
}

func NewStore(sessions session.Store) *Store {
	return &Store{sessions: sessions}
}

func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Cart, error) {
	raw, ok, err := s.sessions.Get(ctx, sessionID, cartKey)
	if err != nil {
		return nil, fmt.Errorf("cart: load session: %w", err)
	}
	c := domain.New()
	if !ok || len(raw) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, fmt.Errorf("cart: decode session cart: %w", err)
	}
	return c, nil
}

func (s *Store) Save(ctx context.Context, sessionID string, c *domain.Cart) error {
	if c.IsEmpty() {
		return s.Clear(ctx, sessionID)
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("cart: encode: %w", err)
	}
	if err := s.sessions.Set(ctx, sessionID, cartKey, raw); err != nil {
		return fmt.Errorf("cart: save session: %w", err)
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID, cartKey); err != nil {
		return fmt.Errorf("cart: clear session: %w", err)
	}
	return nil
}
