package gormstore

import (
	"time"

	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/catalog"
	"github.com/Zhima-Mochi/minishop-checkout/internal/domain/order"
	"github.com/shopspring/decimal"
)

type itemModel struct {
	ID        string          `gorm:"primaryKey;size:64"`
	Name      string          `gorm:"not null"`
	Category  string          `gorm:"index;not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Stock     int             `gorm:"not null;check:stock >= 0"`
	UpdatedAt time.Time
}

func (itemModel) TableName() string { return "catalog_items" }

func itemFromDomain(i *catalog.Item) itemModel {
	return itemModel{
		ID:        i.ID,
		Name:      i.Name,
		Category:  string(i.Category),
		UnitPrice: i.UnitPrice,
		Stock:     i.Stock,
		UpdatedAt: i.UpdatedAt,
	}
}

func (m itemModel) toDomain() *catalog.Item {
	return &catalog.Item{
		ID:        m.ID,
		Name:      m.Name,
		Category:  catalog.Category(m.Category),
		UnitPrice: m.UnitPrice,
		Stock:     m.Stock,
		UpdatedAt: m.UpdatedAt,
	}
}

type orderModel struct {
	ID                string `gorm:"primaryKey;size:64"`
	UserID            string `gorm:"index"`
	GuestName         string
	Phone             string          `gorm:"not null"`
	Total             decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Status            string          `gorm:"index;not null"`
	ExternalReference *string         `gorm:"uniqueIndex"`
	PaymentReceipt    *string
	FailureReason     string
	StockState        string `gorm:"not null"`
	CreatedAt         time.Time
	UpdatedAt         time.Time

	Lines []orderLineModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

func (orderModel) TableName() string { return "orders" }

type orderLineModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"index;not null;size:64"`
	Position  int             `gorm:"not null"`
	ItemID    string          `gorm:"index;not null;size:64"`
	Name      string          `gorm:"not null"`
	Quantity  int             `gorm:"not null;check:quantity > 0"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`

	// only declares the foreign key; never loaded or saved through
	Item *itemModel `gorm:"foreignKey:ItemID;references:ID;constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT"`
}

func (orderLineModel) TableName() string { return "order_lines" }

func orderFromDomain(o *order.Order) orderModel {
	m := orderModel{
		ID:                o.ID,
		UserID:            o.Customer.UserID,
		GuestName:         o.Customer.GuestName,
		Phone:             o.Customer.Phone,
		Total:             o.Total,
		Status:            string(o.Status),
		ExternalReference: o.ExternalReference,
		PaymentReceipt:    o.PaymentReceipt,
		FailureReason:     o.FailureReason,
		StockState:        string(o.Stock),
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	for i, l := range o.Lines {
		m.Lines = append(m.Lines, orderLineModel{
			OrderID:   o.ID,
			Position:  i,
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return m
}

func (m orderModel) toDomain() *order.Order {
	o := &order.Order{
		ID: m.ID,
		Customer: order.Customer{
			UserID:    m.UserID,
			GuestName: m.GuestName,
			Phone:     m.Phone,
		},
		Total:             m.Total,
		Status:            order.Status(m.Status),
		ExternalReference: m.ExternalReference,
		PaymentReceipt:    m.PaymentReceipt,
		FailureReason:     m.FailureReason,
		Stock:             order.StockState(m.StockState),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	for _, l := range m.Lines {
		o.Lines = append(o.Lines, order.Line{
			ItemID:    l.ItemID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return o
}

type alertModel struct {
	ID        string `gorm:"primaryKey;size:64"`
	ItemID    string `gorm:"index;not null"`
	OrderID   string `gorm:"index;not null"`
	Requested int
	Applied   int
	Shortfall int
	Message   string
	Resolved  bool `gorm:"index;not null;default:false"`
	CreatedAt time.Time
}

func (alertModel) TableName() string { return "stock_alerts" }

func alertFromDomain(a *catalog.StockAlert) alertModel {
	return alertModel{
		ID:        a.ID,
		ItemID:    a.ItemID,
		OrderID:   a.OrderID,
		Requested: a.Requested,
		Applied:   a.Applied,
		Shortfall: a.Shortfall,
		Message:   a.Message,
		Resolved:  a.Resolved,
		CreatedAt: a.CreatedAt,
	}
}

func (m alertModel) toDomain() *catalog.StockAlert {
	return &catalog.StockAlert{
		ID:        m.ID,
		ItemID:    m.ItemID,
		OrderID:   m.OrderID,
		Requested: m.Requested,
		Applied:   m.Applied,
		Shortfall: m.Shortfall,
		Message:   m.Message,
		Resolved:  m.Resolved,
		CreatedAt: m.CreatedAt,
	}
}
