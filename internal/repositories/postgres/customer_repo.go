package postgres

import (
	"context"
	"errors"

	"github.com/yoockh/callgate/internal/models"
	"github.com/yoockh/callgate/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CustomerRepository interface {
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	GetByPhone(ctx context.Context, phone string) (*models.Customer, error)
	Upsert(ctx context.Context, c *models.Customer) error
}

type customerRepo struct {
	db *gorm.DB
}

func NewCustomerRepo(db *gorm.DB) CustomerRepository {
	return &customerRepo{db: db}
}

func (r *customerRepo) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &c, err
}

func (r *customerRepo) GetByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	var c models.Customer
	err := r.db.WithContext(ctx).
		Where("? = ANY(phones)", phone).
		Order("updated_at DESC").
		Take(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.ErrNotFound
	}
	return &c, err
}

func (r *customerRepo) Upsert(ctx context.Context, c *models.Customer) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"full_name", "phones", "card_last4_hash", "address_hash", "account_summary", "updated_at"}),
		}).
		Create(c).Error
}
