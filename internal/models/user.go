package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/sunublog/sunublog/pkg/snowflake"
)

// User represents a registered account
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	Name         string     `gorm:"type:varchar(255);not null;column:name" json:"name"`
	Username     string     `gorm:"type:varchar(50);not null;uniqueIndex;column:username" json:"username"`
	Email        string     `gorm:"type:varchar(255);not null;uniqueIndex;column:email" json:"email"`
	Phone        *string    `gorm:"type:varchar(20);index;column:phone" json:"phone,omitempty"`
	PasswordHash string     `gorm:"type:varchar(255);not null;column:password" json:"-"`
	Bio          *string    `gorm:"type:varchar(500);column:bio" json:"bio,omitempty"`
	Avatar       *string    `gorm:"type:varchar(255);column:avatar" json:"avatar,omitempty"`
	IsOnline     bool       `gorm:"not null;default:false;column:is_online" json:"is_online"`
	LastSeen     *time.Time `gorm:"column:last_seen" json:"last_seen,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a snowflake id
func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

// PublicUser is the subset of a user exposed to other users
type PublicUser struct {
	ID       int64      `json:"id,string"`
	Name     string     `json:"name"`
	Username string     `json:"username"`
	Bio      *string    `json:"bio,omitempty"`
	Avatar   *string    `json:"avatar,omitempty"`
	IsOnline bool       `json:"is_online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// Public strips contact details from u
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:       u.ID,
		Name:     u.Name,
		Username: u.Username,
		Bio:      u.Bio,
		Avatar:   u.Avatar,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}

// publicUser returns the public view of u, or nil when the relation was not loaded
func publicUser(u *User) *PublicUser {
	if u == nil {
		return nil
	}
	p := u.Public()
	return &p
}

func assignID(id *int64) {
	if *id == 0 {
		*id = snowflake.GenID()
	}
}
