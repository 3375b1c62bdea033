package model

import (
	"time"

	"gorm.io/datatypes"
)

type FileType string

const (
	FileTypeBase  FileType = "BASE"
	FileTypeImage FileType = "IMAGE"
)

type StorageType string

const (
	StorageTypeLocal StorageType = "LOCAL"
)

type File struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	Size        int64       `gorm:"column:size;not null;default:0" json:"size"`
	FileType    FileType    `gorm:"column:file_type;type:varchar(16);not null;default:'BASE'" json:"file_type"`
	StorageType StorageType `gorm:"column:storage_type;type:varchar(16);not null;default:'LOCAL'" json:"storage_type"`

	// StorageData 存储位置, LOCAL 时为 {"path": "<相对路径>"}
	StorageData datatypes.JSONMap `gorm:"column:storage_data" json:"storage_data"`
	StoragePath string            `gorm:"column:storage_path;size:512;not null;uniqueIndex" json:"-"`

	ContentType      *string `gorm:"column:content_type;size:255" json:"content_type,omitempty"`
	OriginalFilename *string `gorm:"column:original_filename;size:255" json:"original_filename,omitempty"`

	UserID *uint64 `gorm:"column:user_id;index" json:"user_id,omitempty"`
	User   *User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:SET NULL" json:"-"`

	HasPreview         bool    `gorm:"column:has_preview;not null;default:false" json:"has_preview"`
	DefaultPreviewPath *string `gorm:"column:default_preview_path;size:512" json:"default_preview_path,omitempty"`

	Previews []FilePreview `gorm:"foreignKey:FileID;constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (File) TableName() string {
	return "files"
}

// RelPath returns the storage-relative path of a LOCAL file.
func (f *File) RelPath() string {
	if f.StorageData != nil {
		if p, ok := f.StorageData["path"].(string); ok && p != "" {
			return p
		}
	}
	return f.StoragePath
}

// DisplayName returns the original filename, falling back to the stored name.
func (f *File) DisplayName() string {
	if f.OriginalFilename != nil && *f.OriginalFilename != "" {
		return *f.OriginalFilename
	}
	rel := f.RelPath()
	for i := len(rel) - 1; i >= 0; i-- {
		if rel[i] == '/' {
			return rel[i+1:]
		}
	}
	return rel
}

type FilePreview struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	FileID      uint64 `gorm:"column:file_id;not null;uniqueIndex:uk_file_preview_type,priority:1" json:"file_id"`
	PreviewType string `gorm:"column:preview_type;size:64;not null;uniqueIndex:uk_file_preview_type,priority:2" json:"preview_type"`

	StoragePath string `gorm:"column:storage_path;size:512;not null" json:"storage_path"`
	Width       int    `gorm:"column:width" json:"width"`
	Height      int    `gorm:"column:height" json:"height"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (FilePreview) TableName() string {
	return "file_previews"
}
