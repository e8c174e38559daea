package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Notification type constants
const (
	NotifyTypeFriendRequest  = "friend_request"
	NotifyTypeFriendAccepted = "friend_accepted"
	NotifyTypeComment        = "comment"
	NotifyTypeLike           = "like"
	NotifyTypeSystem         = "system"
)

// Notification represents a message addressed to one user
type Notification struct {
	ID        int64             `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	UserID    int64             `gorm:"not null;index:idx_notifications_user_read,priority:1;column:user_id" json:"user_id,string"`
	Type      string            `gorm:"type:varchar(50);not null;column:type" json:"type"`
	Title     string            `gorm:"type:varchar(255);not null;column:title" json:"title"`
	Message   string            `gorm:"type:text;not null;column:message" json:"message"`
	Metadata  datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	ReadAt    *time.Time        `gorm:"index:idx_notifications_user_read,priority:2;column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index;column:created_at" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null;column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// BeforeCreate assigns a snowflake id
func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	assignID(&n.ID)
	return nil
}

// IsRead reports whether the notification has been read
func (n *Notification) IsRead() bool {
	return n.ReadAt != nil
}

// All returns every model managed by migrations
func All() []interface{} {
	return []interface{}{
		&User{},
		&Tag{},
		&Article{},
		&ArticleTag{},
		&Comment{},
		&Like{},
		&Bookmark{},
		&Friend{},
		&Notification{},
	}
}
