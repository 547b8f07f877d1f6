package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentSession(ctx context.Context, paymentSessionID uuid.UUID) (*models.Order, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error)
	Save(ctx context.Context, order *models.Order) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "order %s not found", id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return &order, nil
}

// FindByPaymentSession resolves the order a payment session was opened for.
func (r *repository) FindByPaymentSession(ctx context.Context, paymentSessionID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).First(&order, "payment_session_id = ?", paymentSessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "no order for payment session %s", paymentSessionID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment session")
	}
	return &order, nil
}

func (r *repository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]models.Order, error) {
	var out []models.Order
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Find(&out).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list session orders")
	}
	return out, nil
}

// Save writes every column of the order.
func (r *repository) Save(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).Save(order).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save order")
	}
	return nil
}
