package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-checkout/internal/application"
	domain "github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/fault"
	domorder "github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/session"
	"github.com/Zhima-Mochi/minishop-checkout/internal/observability"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

const catalogService = "catalog-service"

var ErrRepository = errors.New("catalog: repository failure")

// Service exposes catalog reads to shoppers and stock/price administration to operators.
type Service struct {
	items  domain.Repository
	alerts domain.AlertRepository
	orders domorder.Repository
	ids    application.IDGenerator
	in     application.Instruments
}

func NewService(
	items domain.Repository,
	alerts domain.AlertRepository,
	orders domorder.Repository,
	ids application.IDGenerator,
	tel observability.Observability,
) *Service {
	return &Service{
		items:  items,
		alerts: alerts,
		orders: orders,
		ids:    ids,
		in:     application.NewInstruments(tel, catalogService),
	}
}

func (s *Service) Lookup(ctx context.Context, id string) (*domain.Item, error) {
	item, err := s.items.Get(ctx, id)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return item, nil
}

// Menu lists items that are in stock, optionally restricted to one category.
func (s *Service) Menu(ctx context.Context, category domain.Category) ([]*domain.Item, error) {
	if category != "" && !category.Valid() {
		return nil, fault.Validation(fault.CodeInvalidCategory, fmt.Sprintf("unknown category %q", category))
	}
	items, err := s.items.List(ctx, category)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	out := items[:0]
	for _, it := range items {
		if it.Stock > 0 {
			out = append(out, it)
		}
	}
	return out, nil
}

type NewItemInput struct {
	Name      string
	Category  domain.Category
	UnitPrice decimal.Decimal
	Stock     int
}

func (s *Service) AddItem(ctx context.Context, sess session.Session, in NewItemInput) (_ *domain.Item, err error) {
	ctx, call := s.in.Begin(ctx, "catalog.add_item", "AddItem")
	defer func() { call.Done(ctx, err) }()

	if err := application.RequirePrivileged(sess); err != nil {
		return nil, call.Fail("", err)
	}
	if in.Name == "" || !in.Category.Valid() {
		return nil, call.Fail("", fault.Validation(fault.CodeInvalidCategory, "name and a food or beverage category are required"))
	}
	item, derr := domain.NewItem(s.ids.NewID(), in.Name, in.Category, in.UnitPrice, in.Stock)
	if derr != nil {
		return nil, call.Fail("", mapDomainError(derr))
	}
	if err := s.items.Insert(ctx, item); err != nil {
		return nil, call.Fail("REPO_INSERT_FAILED", wrapRepositoryError(err))
	}
	call.With(observability.F("item_id", item.ID))
	return item, nil
}

func (s *Service) Restock(ctx context.Context, sess session.Session, itemID string, qty int) (err error) {
	ctx, call := s.in.Begin(ctx, "catalog.restock", "Restock", attribute.String("item.id", itemID))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("item_id", itemID), observability.F("quantity", qty))

	if err := application.RequirePrivileged(sess); err != nil {
		return call.Fail("", err)
	}
	if qty <= 0 {
		return call.Fail("", fault.Validation(fault.CodeInvalidQuantity, "restock quantity must be greater than zero"))
	}
	if err := s.items.RestoreStock(ctx, itemID, qty); err != nil {
		return call.Fail("", mapDomainError(err))
	}
	return nil
}

// SetPrice changes the catalog price. Order lines already created keep their own unit price.
func (s *Service) SetPrice(ctx context.Context, sess session.Session, itemID string, price decimal.Decimal) (err error) {
	ctx, call := s.in.Begin(ctx, "catalog.set_price", "SetPrice", attribute.String("item.id", itemID))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("item_id", itemID), observability.F("price", price.String()))

	if err := application.RequirePrivileged(sess); err != nil {
		return call.Fail("", err)
	}
	if !domain.ValidPrice(price) {
		return call.Fail("", fault.Validation(fault.CodeInvalidPrice, "price must be greater than zero with at most two decimals"))
	}
	if err := s.items.SetPrice(ctx, itemID, price); err != nil {
		return call.Fail("", mapDomainError(err))
	}
	return nil
}

// DeleteItem removes an item that no order line references. The lookup gives a readable refusal;
// the store enforces the same rule atomically against orders written in between.
func (s *Service) DeleteItem(ctx context.Context, sess session.Session, itemID string) (err error) {
	ctx, call := s.in.Begin(ctx, "catalog.delete_item", "DeleteItem", attribute.String("item.id", itemID))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("item_id", itemID))

	if err := application.RequirePrivileged(sess); err != nil {
		return call.Fail("", err)
	}
	referenced, rerr := s.orders.ReferencesItem(ctx, itemID)
	if rerr != nil {
		return call.Fail("REFERENCE_LOOKUP_FAILED", wrapRepositoryError(rerr))
	}
	if referenced {
		return call.Fail("", fault.Conflict(fault.CodeItemReferenced, "item "+itemID+" is referenced by existing orders"))
	}
	if err := s.items.Delete(ctx, itemID); err != nil {
		return call.Fail("", mapDomainError(err))
	}
	return nil
}

func (s *Service) Alerts(ctx context.Context, sess session.Session, includeResolved bool) ([]*domain.StockAlert, error) {
	if err := application.RequirePrivileged(sess); err != nil {
		return nil, err
	}
	alerts, err := s.alerts.List(ctx, includeResolved)
	if err != nil {
		return nil, wrapRepositoryError(err)
	}
	return alerts, nil
}

func (s *Service) ResolveAlert(ctx context.Context, sess session.Session, alertID string) (err error) {
	ctx, call := s.in.Begin(ctx, "catalog.resolve_alert", "ResolveAlert", attribute.String("alert.id", alertID))
	defer func() { call.Done(ctx, err) }()
	call.With(observability.F("alert_id", alertID))

	if err := application.RequirePrivileged(sess); err != nil {
		return call.Fail("", err)
	}
	if err := s.alerts.Resolve(ctx, alertID); err != nil {
		return call.Fail("", mapDomainError(err))
	}
	return nil
}

func mapDomainError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return fault.Wrap(fault.KindNotFound, fault.CodeItemNotFound, err)
	case errors.Is(err, domain.ErrAlertNotFound):
		return fault.Wrap(fault.KindNotFound, fault.CodeAlertNotFound, err)
	case errors.Is(err, domain.ErrInvalidQuantity):
		return fault.Wrap(fault.KindValidation, fault.CodeInvalidQuantity, err)
	case errors.Is(err, domain.ErrInvalidPrice):
		return fault.Wrap(fault.KindValidation, fault.CodeInvalidPrice, err)
	case errors.Is(err, domain.ErrInsufficientStock):
		return fault.Wrap(fault.KindConflict, fault.CodeItemUnavailable, err)
	case errors.Is(err, domain.ErrReferenced):
		return fault.Wrap(fault.KindConflict, fault.CodeItemReferenced, err)
	default:
		return wrapRepositoryError(err)
	}
}

func wrapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAlertNotFound):
		return mapDomainError(err)
	default:
		return fmt.Errorf("%w: %w", ErrRepository, err)
	}
}
