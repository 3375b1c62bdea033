package model

import (
	"time"

	"gorm.io/datatypes"
)

const (
	GroupSuperAdmin = "SUPER_ADMIN"
	GroupUsers      = "USERS"
	GroupGuest      = "GUEST"

	GuestUsername = "guest"

	DefaultMaxFileSize  int64 = 10_000_000
	DefaultPathTemplate       = "{Y}/{m}"
)

// IsImmutableGroup reports whether a group is protected from rename, delete and membership edits.
func IsImmutableGroup(name string) bool {
	return name == GroupSuperAdmin || name == GroupGuest
}

type Group struct {
	ID   uint64 `gorm:"primaryKey" json:"id"`
	Name string `gorm:"column:name;type:varchar(64);not null;unique" json:"name"`

	Settings *GroupSettings `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"settings,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Group) TableName() string {
	return "user_groups"
}

type GroupSettings struct {
	ID      uint64 `gorm:"primaryKey" json:"-"`
	GroupID uint64 `gorm:"column:group_id;not null;uniqueIndex" json:"group_id"`

	// 为空表示不限制扩展名
	AllowedExtensions datatypes.JSONSlice[string] `gorm:"column:allowed_extensions" json:"allowed_extensions"`
	MaxFileSize       *int64                      `gorm:"column:max_file_size" json:"max_file_size"`
	MaxStorageSize    *int64                      `gorm:"column:max_storage_size" json:"max_storage_size"`
}

// TableName returns the database table name.
func (GroupSettings) TableName() string {
	return "group_settings"
}

type SystemSettings struct {
	ID uint64 `gorm:"primaryKey" json:"-"`

	RegistrationEnabled bool    `gorm:"column:registration_enabled;not null;default:true" json:"registration_enabled"`
	PublicUploadEnabled bool    `gorm:"column:public_upload_enabled;not null;default:false" json:"public_upload_enabled"`
	DefaultUserGroupID  *uint64 `gorm:"column:default_user_group_id" json:"default_user_group_id"`
	UploadPathTemplate  string  `gorm:"column:upload_path_template;size:255;not null;default:'{Y}/{m}'" json:"upload_path_template"`
}

// TableName returns the database table name.
func (SystemSettings) TableName() string {
	return "system_settings"
}
