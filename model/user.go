package model

import (
	"time"
)

type User struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	Username string  `gorm:"column:username;type:varchar(50);not null;unique" json:"username"`
	Email    *string `gorm:"column:email;type:varchar(255);unique" json:"email,omitempty"`

	// guest 用户没有密码
	HashedPassword string `gorm:"column:hashed_password;type:varchar(255);not null;default:''" json:"-"`

	GroupID *uint64 `gorm:"column:group_id;index" json:"group_id,omitempty"`
	Group   *Group  `gorm:"foreignKey:GroupID;references:ID" json:"group,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "users"
}

type UserSession struct {
	ID uint64 `gorm:"primaryKey" json:"session_id"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"-"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	Token      string    `gorm:"column:token;size:64;not null;uniqueIndex" json:"token"`
	IPAddress  *string   `gorm:"column:ip_address;size:64" json:"ip_address"`
	ClientName string    `gorm:"column:client_name;size:120;not null;default:''" json:"client_name"`
	CreatedAt  time.Time `json:"created_at"`

	LastAccessed time.Time `gorm:"column:last_accessed" json:"last_accessed"`
}

// TableName returns the database table name.
func (UserSession) TableName() string {
	return "user_sessions"
}
