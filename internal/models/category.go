package models

import "time"

type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// PostCategory tags a post with a category. The pair is the primary key.
type PostCategory struct {
	PostID     uint      `gorm:"primaryKey;autoIncrement:false" json:"postId"`
	CategoryID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"categoryId"`
	Category   *Category `gorm:"foreignKey:CategoryID;constraint:OnDelete:CASCADE" json:"category,omitempty"`
}
