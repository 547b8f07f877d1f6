package catalog

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/voicecommerce-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/voicecommerce-backend/pkg/errors"
)

// Repository reads products and store locations.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ListActiveProducts returns active products, optionally filtered by category,
// ordered by popularity.
func (r *Repository) ListActiveProducts(ctx context.Context, category string) ([]models.Product, error) {
	q := r.db.WithContext(ctx).Where("is_active = ?", true)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var products []models.Product
	if err := q.Order("popularity DESC").Order("id ASC").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}

func (r *Repository) FindProduct(ctx context.Context, id string) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeNotFound, "product %s not found", id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

// ReserveStock decrements stock only when enough is available.
func (r *Repository) ReserveStock(ctx context.Context, productID string, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", productID, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, res.Error, "reserve stock")
	}
	if res.RowsAffected == 0 {
		return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "not enough stock for %s", productID).
			WithDetails(map[string]any{"product_id": productID, "requested": qty})
	}
	return nil
}

// Reserve decrements stock inside the caller's transaction.
func (r *Repository) Reserve(ctx context.Context, tx *gorm.DB, productID string, qty int) error {
	return r.WithTx(tx).ReserveStock(ctx, productID, qty)
}

// Release returns reserved stock.
func (r *Repository) Release(ctx context.Context, tx *gorm.DB, productID string, qty int) error {
	err := r.WithTx(tx).db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("stock", gorm.Expr("stock + ?", qty)).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "release stock")
	}
	return nil
}

func (r *Repository) ListStoreLocations(ctx context.Context) ([]models.StoreLocation, error) {
	var locations []models.StoreLocation
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&locations).Error; err != nil {
		return nil, err
	}
	return locations, nil
}

func (r *Repository) FindStoreLocation(ctx context.Context, id string) (*models.StoreLocation, error) {
	var location models.StoreLocation
	if err := r.db.WithContext(ctx).First(&location, "id = ? AND is_active = ?", id, true).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Newf(pkgerrors.CodeLocationNotFound, "pickup location %s not found", id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load store location")
	}
	return &location, nil
}

func (r *Repository) CreateStoreLocation(ctx context.Context, location *models.StoreLocation) error {
	return r.db.WithContext(ctx).Create(location).Error
}
