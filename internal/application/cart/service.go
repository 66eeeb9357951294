package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/cart"
	domcatalog "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const (
	cartService = "cart-service"
	// LockTimeout bounds how long a request waits for another request on the same session.
	LockTimeout = 5 * time.Second
)

type Action string

const (
	ActionIncrease Action = "increase"
	ActionDecrease Action = "decrease"
	ActionRemove   Action = "remove"
	ActionSet      Action = "set"
)

// Adjustment changes one line. Amount is a delta for increase/decrease (default 1) and the
// absolute quantity for set.
type Adjustment struct {
	Action Action
	Amount int
}

type ViewLine struct {
	ItemID    string
	Name      string
	UnitPrice decimal.Decimal
	Quantity  int
	Subtotal  decimal.Decimal
	// Available is false when the item has left the catalog or no longer has enough stock.
	Available bool
}

type View struct {
	Lines []ViewLine
	Total decimal.Decimal
	Count int
}

type Service struct {
	items  domcatalog.Repository
	store  *Store
	locker session.Locker
	in     application.Instruments
}

func NewService(items domcatalog.Repository, store *Store, locker session.Locker, tel observability.Observability) *Service {
	return &Service{
		items:  items,
		store:  store,
		locker: locker,
		in:     application.NewInstruments(tel, cartService),
	}
}

// AddItem merges qty into the session cart after checking the combined quantity against stock.
func (s *Service) AddItem(ctx context.Context, sess session.Session, itemID string, qty int) (err error) {
	ctx, call := s.in.Begin(ctx, "cart.add_item", "AddItem", attribute.String("item.id", itemID))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("item_id", itemID), observability.F("quantity", qty))

	if qty <= 0 {
		return call.Fail("", fault.Validation(fault.CodeInvalidQuantity, "quantity must be greater than zero"))
	}
	err = s.mutate(ctx, sess, func(c *domain.Cart) error {
		want := c.Quantity(itemID) + qty
		if err := s.ensureAvailable(ctx, itemID, want); err != nil {
			return err
		}
		return c.Set(itemID, want)
	})
	if err != nil {
		return call.Fail("", err)
	}
	return nil
}

// RemoveItem drops the line; removing an absent item is a no-op.
func (s *Service) RemoveItem(ctx context.Context, sess session.Session, itemID string) (err error) {
	ctx, call := s.in.Begin(ctx, "cart.remove_item", "RemoveItem", attribute.String("item.id", itemID))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("item_id", itemID))

	err = s.mutate(ctx, sess, func(c *domain.Cart) error {
		c.Remove(itemID)
		return nil
	})
	if err != nil {
		return call.Fail("", err)
	}
	return nil
}

func (s *Service) AdjustItem(ctx context.Context, sess session.Session, itemID string, adj Adjustment) (err error) {
	ctx, call := s.in.Begin(ctx, "cart.adjust_item", "AdjustItem",
		attribute.String("item.id", itemID),
		attribute.String("cart.action", string(adj.Action)),
	)
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("item_id", itemID), observability.F("action", string(adj.Action)))

	amount := adj.Amount
	switch adj.Action {
	case ActionIncrease, ActionDecrease:
		if amount == 0 {
			amount = 1
		}
		if amount < 0 {
			return call.Fail("", fault.Validation(fault.CodeInvalidQuantity, "adjustment amount must be positive"))
		}
	case ActionSet:
		if amount < 0 {
			return call.Fail("", fault.Validation(fault.CodeInvalidQuantity, "quantity must not be negative"))
		}
	case ActionRemove:
	default:
		return call.Fail("", fault.Validation("INVALID_ACTION", fmt.Sprintf("unknown cart action %q", adj.Action)))
	}

	err = s.mutate(ctx, sess, func(c *domain.Cart) error {
		current := c.Quantity(itemID)
		var want int
		switch adj.Action {
		case ActionIncrease:
			want = current + amount
		case ActionDecrease:
			if current == 0 {
				return nil
			}
			want = current - amount
		case ActionSet:
			want = amount
		case ActionRemove:
			want = 0
		}
		if want < 1 {
			c.Remove(itemID)
			return nil
		}
		if want > current {
			if err := s.ensureAvailable(ctx, itemID, want); err != nil {
				return err
			}
		}
		return c.Set(itemID, want)
	})
	if err != nil {
		return call.Fail("", err)
	}
	return nil
}

// Snapshot prices the cart with current catalog data, in the order items were added.
func (s *Service) Snapshot(ctx context.Context, sess session.Session) (*View, error) {
	c, err := s.store.Load(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	view := &View{Total: decimal.Zero, Lines: make([]ViewLine, 0, c.Len())}
	for _, l := range c.Lines() {
		vl := ViewLine{ItemID: l.ItemID, Quantity: l.Quantity, UnitPrice: decimal.Zero, Subtotal: decimal.Zero}
		item, err := s.items.Get(ctx, l.ItemID)
		switch {
		case err == nil:
			vl.Name = item.Name
			vl.UnitPrice = item.UnitPrice
			vl.Subtotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
			vl.Available = item.Covers(l.Quantity)
			view.Total = view.Total.Add(vl.Subtotal)
		case errors.Is(err, domcatalog.ErrNotFound):
		default:
			return nil, fmt.Errorf("cart: price line %s: %w", l.ItemID, err)
		}
		view.Count += l.Quantity
		view.Lines = append(view.Lines, vl)
	}
	return view, nil
}

func (s *Service) Count(ctx context.Context, sess session.Session) (int, error) {
	c, err := s.store.Load(ctx, sess.ID)
	if err != nil {
		return 0, err
	}
	return c.Count(), nil
}

func (s *Service) Clear(ctx context.Context, sess session.Session) error {
	unlock, err := Lock(ctx, s.locker, sess.ID)
	if err != nil {
		return err
	}
	defer unlock()
	return s.store.Clear(ctx, sess.ID)
}

func (s *Service) mutate(ctx context.Context, sess session.Session, fn func(*domain.Cart) error) error {
	unlock, err := Lock(ctx, s.locker, sess.ID)
	if err != nil {
		return err
	}
	defer unlock()

	c, err := s.store.Load(ctx, sess.ID)
	if err != nil {
		return err
	}
	if err := fn(c); err != nil {
		return err
	}
	return s.store.Save(ctx, sess.ID, c)
}

func (s *Service) ensureAvailable(ctx context.Context, itemID string, want int) error {
	item, err := s.items.Get(ctx, itemID)
	if errors.Is(err, domcatalog.ErrNotFound) {
		return fault.NotFound(fault.CodeItemUnavailable, "item "+itemID+" does not exist")
	}
	if err != nil {
		return fmt.Errorf("cart: lookup %s: %w", itemID, err)
	}
	if !item.Covers(want) {
		return &fault.Error{
			Kind:    fault.KindConflict,
			Code:    fault.CodeItemUnavailable,
			Message: fmt.Sprintf("item %s: %d requested, %d in stock", itemID, want, item.Stock),
			ItemID:  itemID,
		}
	}
	return nil
}

// Lock takes the per-session lock shared by cart mutations and checkout.
func Lock(ctx context.Context, locker session.Locker, sessionID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, LockTimeout)
	defer cancel()
	unlock, err := locker.Lock(lockCtx, "session:"+sessionID)
	if err != nil {
		return nil, fault.Wrap(fault.KindConflict, fault.CodeSessionBusy, err)
	}
	return unlock, nil
}
