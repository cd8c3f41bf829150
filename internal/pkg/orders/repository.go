package orders

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/MemoWindow/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the order ledger service.
type Repository interface {
	CreateIfNotExists(ctx context.Context, order *models.Order) (bool, *models.Order, error)
	GetByID(ctx context.Context, id uint) (*models.Order, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	ListRecent(ctx context.Context, limit int) ([]models.Order, int64, error)
	// UpdateByID applies updates only while the order is in one of fromStatuses.
	UpdateByID(ctx context.Context, id uint, fromStatuses []string, updates map[string]interface{}) (bool, error)
	UpdateBySessionID(ctx context.Context, sessionID string, fromStatuses []string, updates map[string]interface{}) (bool, error)
	AcquireLease(ctx context.Context, sessionID string, now, until time.Time) (bool, error)
	ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error)
	AutoMigrate() error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates an order repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateIfNotExists(ctx context.Context, order *models.Order) (bool, *models.Order, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_session_id"}},
		DoNothing: true,
	}).Create(order)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	var stored models.Order
	if err := r.db.WithContext(ctx).Where("stripe_session_id = ?", order.StripeSessionID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return tx.RowsAffected > 0, &stored, nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uint) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) GetBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *gormRepository) ListRecent(ctx context.Context, limit int) ([]models.Order, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Order{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []models.Order
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *gormRepository) UpdateByID(ctx context.Context, id uint, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) UpdateBySessionID(ctx context.Context, sessionID string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("stripe_session_id = ? AND status IN ?", sessionID, fromStatuses).
		Updates(updates)
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) AcquireLease(ctx context.Context, sessionID string, now, until time.Time) (bool, error) {
	tx := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("stripe_session_id = ? AND status IN ?", sessionID, []string{models.OrderStatusPending, models.OrderStatusFailed}).
		Where("(lease_expires_at IS NULL OR lease_expires_at < ?)", now).
		Updates(map[string]interface{}{
			"status":           models.OrderStatusPending,
			"lease_expires_at": until,
			"attempts":         gorm.Expr("attempts + 1"),
		})
	return tx.RowsAffected > 0, tx.Error
}

// ListStalePending returns pending orders that were attempted at least once,
// hold no live lease and were last touched before the cutoff.
func (r *gormRepository) ListStalePending(ctx context.Context, before time.Time, limit int) ([]models.Order, error) {
	var list []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND attempts > 0 AND updated_at < ?", models.OrderStatusPending, before).
		Where("(lease_expires_at IS NULL OR lease_expires_at < ?)", before).
		Order("updated_at").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *gormRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&models.Order{})
}
