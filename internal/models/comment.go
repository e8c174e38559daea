package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Comment represents a comment on an article. Replies carry the id of a
// top-level comment in ParentID; replies to replies are rejected on write.
type Comment struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	UserID     int64     `gorm:"not null;index;column:user_id" json:"user_id,string"`
	ArticleID  int64     `gorm:"not null;index;column:article_id" json:"article_id,string"`
	ParentID   *int64    `gorm:"index;column:parent_id" json:"parent_id,string,omitempty"`
	Content    string    `gorm:"type:text;not null;column:content" json:"content"`
	LikesCount int64     `gorm:"not null;default:0;column:likes_count" json:"likes_count"`
	CreatedAt  time.Time `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null;column:updated_at" json:"updated_at"`

	// Relationships
	User    *User     `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Replies []Comment `gorm:"foreignKey:ParentID;references:ID" json:"replies,omitempty"`
}

// TableName specifies the table name for Comment
func (Comment) TableName() string {
	return "comments"
}

// BeforeCreate assigns a snowflake id
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// IsReply reports whether c answers another comment
func (c *Comment) IsReply() bool {
	return c.ParentID != nil
}

// MarshalJSON renders the author without contact details
func (c Comment) MarshalJSON() ([]byte, error) {
	type comment Comment
	return json.Marshal(struct {
		comment
		User *PublicUser `json:"user,omitempty"`
	}{comment(c), publicUser(c.User)})
}
