package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Friend edge status constants
const (
	FriendStatusPending  = "pending"
	FriendStatusAccepted = "accepted"
	FriendStatusBlocked  = "blocked"
)

// FriendStatusNone is reported for pairs with no edge in either direction
const FriendStatusNone = "none"

// Friend is a directed edge from UserID (requester) to FriendID (recipient).
// An accepted friendship is stored as two accepted edges, one per direction.
type Friend struct {
	ID         int64      `gorm:"primaryKey;autoIncrement:false;column:id" json:"id,string"`
	UserID     int64      `gorm:"not null;uniqueIndex:idx_friends_pair,priority:1;index:idx_friends_user_status,priority:1;column:user_id" json:"user_id,string"`
	FriendID   int64      `gorm:"not null;uniqueIndex:idx_friends_pair,priority:2;index;column:friend_id" json:"friend_id,string"`
	Status     string     `gorm:"type:varchar(20);not null;default:pending;index:idx_friends_user_status,priority:2;column:status" json:"status"`
	AcceptedAt *time.Time `gorm:"column:accepted_at" json:"accepted_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null;column:created_at" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;column:updated_at" json:"updated_at"`

	// Relationships
	User   *User `gorm:"foreignKey:UserID;references:ID" json:"user,omitempty"`
	Friend *User `gorm:"foreignKey:FriendID;references:ID" json:"friend,omitempty"`
}

// TableName specifies the table name for Friend
func (Friend) TableName() string {
	return "friends"
}

// BeforeCreate assigns a snowflake id
func (f *Friend) BeforeCreate(tx *gorm.DB) error {
	assignID(&f.ID)
	return nil
}

// Involves reports whether userID is either end of the edge
func (f *Friend) Involves(userID int64) bool {
	return f.UserID == userID || f.FriendID == userID
}

// MarshalJSON renders both ends of the edge without contact details
func (f Friend) MarshalJSON() ([]byte, error) {
	type friend Friend
	return json.Marshal(struct {
		friend
		User   *PublicUser `json:"user,omitempty"`
		Friend *PublicUser `json:"friend,omitempty"`
	}{friend(f), publicUser(f.User), publicUser(f.Friend)})
}
