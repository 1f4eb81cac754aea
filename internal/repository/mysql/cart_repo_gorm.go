package mysql

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront-service/internal/domain"
	"storefront-service/internal/repository"
)

type cartRepo struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) repository.CartRepository {
	return &cartRepo{db: db}
}

func (r *cartRepo) Upsert(ctx context.Context, userID, productID uint64, qty int64) (*domain.CartItem, error) {
	var item domain.CartItem
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND product_id = ?", userID, productID).
			First(&item).Error
		if err == nil {
			item.Quantity += qty
			return tx.Save(&item).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		item = domain.CartItem{UserID: userID, ProductID: productID, Quantity: qty}
		return tx.Create(&item).Error
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"userId": userID, "productId": productID}).Error("cart upsert failed")
		return nil, err
	}
	return &item, nil
}

func (r *cartRepo) FindByID(ctx context.Context, id uint64) (*domain.CartItem, error) {
	var item domain.CartItem
	if err := r.db.WithContext(ctx).First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *cartRepo) ListByUser(ctx context.Context, userID uint64) ([]domain.CartItem, error) {
	var out []domain.CartItem
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *cartRepo) UpdateQuantity(ctx context.Context, id uint64, qty int64) error {
	return r.db.WithContext(ctx).
		Model(&domain.CartItem{}).
		Where("id = ?", id).
		Update("quantity", qty).Error
}

func (r *cartRepo) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&domain.CartItem{}, id).Error
}
