package repository

import (
	"context"

	"github.com/example/blog-cms/internal/models"
	"gorm.io/gorm"
)

type CategoryRepository struct{ db *gorm.DB }

func NewCategoryRepository(db *gorm.DB) *CategoryRepository { return &CategoryRepository{db: db} }

func (r *CategoryRepository) Create(ctx context.Context, c *models.Category) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CategoryRepository) UpdateName(ctx context.Context, id uint, name string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.Category{}).Where("id = ?", id).Update("name", name)
	return res.RowsAffected, res.Error
}

func (r *CategoryRepository) GetByID(ctx context.Context, id uint) (*models.Category, error) {
	var c models.Category
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&categories).Error; err != nil {
		return nil, err
	}
	return categories, nil
}

// Delete removes the category and its association rows.
func (r *CategoryRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) (int64, error) {
	if err := tx.WithContext(ctx).Where("category_id = ?", id).Delete(&models.PostCategory{}).Error; err != nil {
		return 0, err
	}
	res := tx.WithContext(ctx).Delete(&models.Category{}, id)
	return res.RowsAffected, res.Error
}

// Missing returns the ids that have no category row.
func (r *CategoryRepository) Missing(ctx context.Context, tx *gorm.DB, ids []uint) ([]uint, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var found []uint
	if err := tx.WithContext(ctx).Model(&models.Category{}).Where("id IN ?", ids).Pluck("id", &found).Error; err != nil {
		return nil, err
	}
	present := make(map[uint]struct{}, len(found))
	for _, id := range found {
		present[id] = struct{}{}
	}
	var missing []uint
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
