package models

import "time"

type Post struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	Title             string         `gorm:"type:varchar(255);not null" json:"title"`
	Content           string         `gorm:"type:text;not null" json:"content"`
	ThumbnailImageKey string         `gorm:"type:varchar(255)" json:"thumbnailImageKey"`
	ThumbnailImageURL string         `gorm:"-" json:"thumbnailImageUrl,omitempty"`
	PostCategories    []PostCategory `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"postCategories"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime" json:"updatedAt"`
}

// CategoryIDs returns the ids of the post's loaded associations in storage order.
func (p *Post) CategoryIDs() []uint {
	ids := make([]uint, 0, len(p.PostCategories))
	for _, pc := range p.PostCategories {
		ids = append(ids, pc.CategoryID)
	}
	return ids
}
