// Package postgres persists the order aggregate. The optimistic token is
// enforced in SQL: updates match on (order_id, token) and bump the token,
// so a stale writer affects zero rows and gets a conflict error back.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/slicework/choreo-go/core/order"
)

type orderModel struct {
	OrderID          string    `gorm:"column:order_id;primaryKey"`
	CorrelationID    string    `gorm:"column:correlation_id"`
	OrderStatus      string    `gorm:"column:order_status"`
	PaymentStatus    string    `gorm:"column:payment_status"`
	RestaurantStatus string    `gorm:"column:restaurant_status"`
	DeliveryStatus   string    `gorm:"column:delivery_status"`
	Comment          string    `gorm:"column:comment"`
	CreatedAt        time.Time `gorm:"column:created_at"`
	LastUpdated      time.Time `gorm:"column:last_updated"`
	Token            uint64    `gorm:"column:token"`
}

func (orderModel) TableName() string { return "orders" }

func modelFromOrder(o order.Order) orderModel {
	return orderModel{
		OrderID:          o.OrderID,
		CorrelationID:    o.CorrelationID,
		OrderStatus:      o.OrderStatus,
		PaymentStatus:    o.PaymentStatus,
		RestaurantStatus: o.RestaurantStatus,
		DeliveryStatus:   o.DeliveryStatus,
		Comment:          o.Comment,
		CreatedAt:        o.CreatedAt.UTC(),
		LastUpdated:      o.LastUpdated.UTC(),
		Token:            o.Token,
	}
}

func (m orderModel) toOrder() order.Order {
	return order.Order{
		OrderID:          m.OrderID,
		CorrelationID:    m.CorrelationID,
		OrderStatus:      m.OrderStatus,
		PaymentStatus:    m.PaymentStatus,
		RestaurantStatus: m.RestaurantStatus,
		DeliveryStatus:   m.DeliveryStatus,
		Comment:          m.Comment,
		CreatedAt:        m.CreatedAt.UTC(),
		LastUpdated:      m.LastUpdated.UTC(),
		Token:            m.Token,
	}
}

type Store struct {
	db *gorm.DB
}

// Connect opens the database and prepares the orders table.
func Connect(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open gorm postgres: %w", err)
	}
	return NewStore(db)
}

func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&orderModel{}); err != nil {
		return nil, fmt.Errorf("migrate orders table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) FindByOrderID(ctx context.Context, orderID string) (order.Order, error) {
	var row orderModel
	err := s.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, fmt.Errorf("find order %s: %w", orderID, err)
	}
	return row.toOrder(), nil
}

func (s *Store) Insert(ctx context.Context, o order.Order) error {
	row := modelFromOrder(o)
	row.Token = 1
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return order.ErrAlreadyExists
		}
		return fmt.Errorf("insert order %s: %w", o.OrderID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, o order.Order) error {
	result := s.db.WithContext(ctx).
		Model(&orderModel{}).
		Where("order_id = ? AND token = ?", o.OrderID, o.Token).
		Updates(map[string]any{
			"order_status":      o.OrderStatus,
			"payment_status":    o.PaymentStatus,
			"restaurant_status": o.RestaurantStatus,
			"delivery_status":   o.DeliveryStatus,
			"comment":           o.Comment,
			"last_updated":      o.LastUpdated.UTC(),
			"token":             o.Token + 1,
		})
	if result.Error != nil {
		return fmt.Errorf("update order %s: %w", o.OrderID, result.Error)
	}
	if result.RowsAffected == 0 {
		// Zero rows means either a stale token or no such order at all.
		var count int64
		if err := s.db.WithContext(ctx).
			Model(&orderModel{}).
			Where("order_id = ?", o.OrderID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("update order %s: %w", o.OrderID, err)
		}
		if count == 0 {
			return order.ErrNotFound
		}
		return order.ErrConcurrencyConflict
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ order.Store = (*Store)(nil)
