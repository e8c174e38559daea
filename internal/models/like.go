package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Like target kinds
const (
	LikeKindArticle = "article"
	LikeKindComment = "comment"
)

// LikeTarget identifies the liked entity
type LikeTarget struct {
	Kind string
	ID   int64
}

// ArticleTarget returns the like target for an article
func ArticleTarget(id int64) LikeTarget {
	return LikeTarget{Kind: LikeKindArticle, ID: id}
}

// CommentTarget returns the like target for a comment
func CommentTarget(id int64) LikeTarget {
	return LikeTarget{Kind: LikeKindComment, ID: id}
}

// Validate rejects unknown kinds
func (t LikeTarget) Validate() error {
	switch t.Kind {
	case LikeKindArticle, LikeKindComment:
		return nil
	default:
		return fmt.Errorf("unknown like target kind %q", t.Kind)
	}
}

// Table returns the table holding the target's likes_count
func (t LikeTarget) Table() string {
	if t.Kind == LikeKindComment {
		return Comment{}.TableName()
	}
	return Article{}.TableName()
}

// Like represents one user's like on an article or comment
type Like struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	UserID     int64     `gorm:"not null;uniqueIndex:idx_likes_user_target,priority:1;column:user_id" json:"user_id,string"`
	TargetKind string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_likes_user_target,priority:2;index:idx_likes_target,priority:1;column:target_kind" json:"target_kind"`
	TargetID   int64     `gorm:"not null;uniqueIndex:idx_likes_user_target,priority:3;index:idx_likes_target,priority:2;column:target_id" json:"target_id,string"`
	CreatedAt  time.Time `gorm:"not null;column:created_at" json:"created_at"`
}

// TableName specifies the table name for Like
func (Like) TableName() string {
	return "likes"
}

// BeforeCreate assigns a snowflake id
func (l *Like) BeforeCreate(tx *gorm.DB) error {
	assignID(&l.ID)
	return nil
}

// Target returns the tagged target of l
func (l *Like) Target() LikeTarget {
	return LikeTarget{Kind: l.TargetKind, ID: l.TargetID}
}

// Bookmark represents an article saved by a user
type Bookmark struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_bookmarks_user_article,priority:1;column:user_id" json:"user_id,string"`
	ArticleID int64     `gorm:"not null;uniqueIndex:idx_bookmarks_user_article,priority:2;index;column:article_id" json:"article_id,string"`
	CreatedAt time.Time `gorm:"not null;column:created_at" json:"created_at"`

	// Relationships
	Article *Article `gorm:"foreignKey:ArticleID;references:ID" json:"article,omitempty"`
}

// TableName specifies the table name for Bookmark
func (Bookmark) TableName() string {
	return "bookmarks"
}

// BeforeCreate assigns a snowflake id
func (b *Bookmark) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}
