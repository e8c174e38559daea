package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Article status values
const (
	ArticleStatusDraft     = "draft"
	ArticleStatusPublished = "published"
	ArticleStatusScheduled = "scheduled"
)

// Article visibility values
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Article represents a blog article
type Article struct {
	ID              int64      `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	UserID          int64      `gorm:"not null;index:idx_articles_user_status,priority:1;column:user_id" json:"user_id,string"`
	Title           string     `gorm:"type:varchar(255);not null;column:title" json:"title"`
	Slug            string     `gorm:"type:varchar(255);not null;uniqueIndex;column:slug" json:"slug"`
	Excerpt         string     `gorm:"type:varchar(500);not null;column:excerpt" json:"excerpt"`
	Content         string     `gorm:"type:text;not null;column:content" json:"content"`
	Status          string     `gorm:"type:varchar(20);not null;default:draft;index:idx_articles_status_published,priority:1;index:idx_articles_user_status,priority:2;column:status" json:"status"`
	Visibility      string     `gorm:"type:varchar(20);not null;default:public;column:visibility" json:"visibility"`
	CommentsEnabled bool       `gorm:"not null;column:comments_enabled" json:"comments_enabled"`
	Featured        bool       `gorm:"not null;default:false;column:featured" json:"featured"`
	PublishedAt     *time.Time `gorm:"index:idx_articles_status_published,priority:2;column:published_at" json:"published_at,omitempty"`
	ScheduledAt     *time.Time `gorm:"column:scheduled_at" json:"scheduled_at,omitempty"`
	Views           int64      `gorm:"not null;default:0;column:views" json:"views"`
	LikesCount      int64      `gorm:"not null;default:0;column:likes_count" json:"likes_count"`
	CommentsCount   int64      `gorm:"not null;default:0;column:comments_count" json:"comments_count"`
	BookmarksCount  int64      `gorm:"not null;default:0;column:bookmarks_count" json:"bookmarks_count"`
	CreatedAt       time.Time  `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"not null;column:updated_at" json:"updated_at"`

	// Relationships
	User *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Tags []Tag `gorm:"many2many:article_tags;joinForeignKey:ArticleID;joinReferences:TagID" json:"tags"`

	// Viewer state, set only on single-article reads by a signed-in viewer
	Liked      *bool `gorm:"-" json:"liked,omitempty"`
	Bookmarked *bool `gorm:"-" json:"bookmarked,omitempty"`
}

// TableName specifies the table name for Article
func (Article) TableName() string {
	return "articles"
}

// BeforeCreate assigns a snowflake id
func (a *Article) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}

// Tag represents a topic label shared between articles
type Tag struct {
	ID            int64     `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	Name          string    `gorm:"type:varchar(50);not null;uniqueIndex;column:name" json:"name"`
	Slug          string    `gorm:"type:varchar(64);not null;uniqueIndex;column:slug" json:"slug"`
	Description   *string   `gorm:"type:text;column:description" json:"description,omitempty"`
	Color         *string   `gorm:"type:varchar(7);column:color" json:"color,omitempty"`
	ArticlesCount int64     `gorm:"not null;default:0;column:articles_count" json:"articles_count"`
	CreatedAt     time.Time `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for Tag
func (Tag) TableName() string {
	return "tags"
}

// BeforeCreate assigns a snowflake id
func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	assignID(&t.ID)
	return nil
}

// ArticleTag represents an article-to-tag association
type ArticleTag struct {
	ArticleID int64 `gorm:"primaryKey;autoIncrement:false;column:article_id"`
	TagID     int64 `gorm:"primaryKey;autoIncrement:false;index;column:tag_id"`
}

// TableName specifies the table name for ArticleTag
func (ArticleTag) TableName() string {
	return "article_tags"
}

// MarshalJSON renders the author without contact details
func (a Article) MarshalJSON() ([]byte, error) {
	type article Article
	return json.Marshal(struct {
		article
		User *PublicUser `json:"user,omitempty"`
	}{article(a), publicUser(a.User)})
}
