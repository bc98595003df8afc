package models

import "time"

const (
	ActionNewPost    = "new_post"
	ActionUpdatePost = "update_post"
	ActionDeletePost = "delete_post"
)

type ActivityLog struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	Action   string    `gorm:"type:varchar(50);not null" json:"action"`
	PostID   uint      `gorm:"index;not null" json:"post_id"`
	LoggedAt time.Time `gorm:"autoCreateTime" json:"logged_at"`
}

// All lists every model the schema migration creates.
func All() []interface{} {
	return []interface{}{&Category{}, &Post{}, &PostCategory{}, &ActivityLog{}, &AdminUser{}, &AuthSession{}}
}
