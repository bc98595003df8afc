package repository

import (
	"context"

	"github.com/example/blog-cms/internal/models"
	"gorm.io/gorm"
)

type PostRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) *PostRepository { return &PostRepository{db: db} }

// withCategories preloads associations together with the category id and name.
func withCategories(q *gorm.DB) *gorm.DB {
	return q.Preload("PostCategories", func(db *gorm.DB) *gorm.DB {
		return db.Order("category_id ASC")
	}).Preload("PostCategories.Category", func(db *gorm.DB) *gorm.DB {
		return db.Select("id", "name", "created_at", "updated_at")
	})
}

func (r *PostRepository) Create(ctx context.Context, tx *gorm.DB, p *models.Post) error {
	return tx.WithContext(ctx).Omit("PostCategories").Create(p).Error
}

func (r *PostRepository) UpdateFields(ctx context.Context, tx *gorm.DB, p *models.Post) error {
	return tx.WithContext(ctx).Model(&models.Post{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"title":               p.Title,
		"content":             p.Content,
		"thumbnail_image_key": p.ThumbnailImageKey,
	}).Error
}

func (r *PostRepository) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	return tx.WithContext(ctx).Delete(&models.Post{}, id).Error
}

// ThumbnailKey returns the post's stored thumbnail key; ok is false when
// the post does not exist.
func (r *PostRepository) ThumbnailKey(ctx context.Context, tx *gorm.DB, id uint) (key string, ok bool, err error) {
	var keys []string
	if err := tx.WithContext(ctx).Model(&models.Post{}).Where("id = ?", id).Limit(1).Pluck("thumbnail_image_key", &keys).Error; err != nil {
		return "", false, err
	}
	if len(keys) == 0 {
		return "", false, nil
	}
	return keys[0], true, nil
}

// ThumbnailInUse reports whether any post still references key.
func (r *PostRepository) ThumbnailInUse(ctx context.Context, key string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Where("thumbnail_image_key = ?", key).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostRepository) GetByID(ctx context.Context, id uint) (*models.Post, error) {
	return r.GetByIDTx(ctx, r.db, id)
}

func (r *PostRepository) GetByIDTx(ctx context.Context, tx *gorm.DB, id uint) (*models.Post, error) {
	var post models.Post
	if err := withCategories(tx.WithContext(ctx)).First(&post, id).Error; err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *PostRepository) List(ctx context.Context) ([]models.Post, error) {
	posts := []models.Post{}
	if err := withCategories(r.db.WithContext(ctx)).Order("created_at DESC").Order("id DESC").Find(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

// ReplaceCategories drops every association of postID and writes one row per
// id. It is a full replace, not a diff; callers run it inside a transaction.
func (r *PostRepository) ReplaceCategories(ctx context.Context, tx *gorm.DB, postID uint, categoryIDs []uint) (removed int64, err error) {
	res := tx.WithContext(ctx).Where("post_id = ?", postID).Delete(&models.PostCategory{})
	if res.Error != nil {
		return 0, res.Error
	}
	if len(categoryIDs) == 0 {
		return res.RowsAffected, nil
	}
	rows := make([]models.PostCategory, 0, len(categoryIDs))
	for _, cid := range categoryIDs {
		rows = append(rows, models.PostCategory{PostID: postID, CategoryID: cid})
	}
	if err := tx.WithContext(ctx).Omit("Category").Create(&rows).Error; err != nil {
		return res.RowsAffected, err
	}
	return res.RowsAffected, nil
}

// PostIDsForCategory lists the posts tagged with categoryID.
func (r *PostRepository) PostIDsForCategory(ctx context.Context, tx *gorm.DB, categoryID uint) ([]uint, error) {
	var ids []uint
	err := tx.WithContext(ctx).Model(&models.PostCategory{}).Where("category_id = ?", categoryID).Pluck("post_id", &ids).Error
	return ids, err
}

func (r *PostRepository) LogActivity(ctx context.Context, tx *gorm.DB, action string, postID uint) error {
	log := models.ActivityLog{Action: action, PostID: postID}
	return tx.WithContext(ctx).Create(&log).Error
}
