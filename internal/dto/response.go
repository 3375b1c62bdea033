package dto

import "time"

type UploadResponse struct {
	Detail           string `json:"detail"`
	FileID           uint64 `json:"file_id"`
	DirectLink       string `json:"direct_link"`
	DownloadLink     string `json:"download_link"`
	OriginalFilename string `json:"original_filename"`
}

type BulkUploadResponse struct {
	Detail       string `json:"detail"`
	SuccessCount int    `json:"success_count"`
	FailedCount  int    `json:"failed_count"`
}

type FileItem struct {
	FileID           uint64    `json:"file_id"`
	OriginalFilename string    `json:"original_filename"`
	DirectLink       string    `json:"direct_link"`
	HasPreview       bool      `json:"has_preview"`
	PreviewURL       *string   `json:"preview_url"`
	Size             int64     `json:"size"`
	ContentType      string    `json:"content_type"`
	CreatedAt        time.Time `json:"created_at"`
}

type FileListResponse struct {
	Items    []FileItem `json:"items"`
	Total    int64      `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"page_size"`
}

type DeletedResponse struct {
	Deleted []uint64 `json:"deleted"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type GroupRef struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type MeResponse struct {
	ID       uint64    `json:"id"`
	Username string    `json:"username"`
	Email    *string   `json:"email"`
	Group    *GroupRef `json:"group"`
}

type GroupItem struct {
	ID                uint64   `json:"id"`
	Name              string   `json:"name"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxFileSize       *int64   `json:"max_file_size"`
	MaxStorageSize    *int64   `json:"max_storage_size"`
	FileCount         int64    `json:"file_count"`
	StorageBytes      int64    `json:"storage_bytes"`
}

type UserItem struct {
	ID           uint64    `json:"id"`
	Username     string    `json:"username"`
	Email        *string   `json:"email"`
	Group        *GroupRef `json:"group"`
	FileCount    int64     `json:"file_count"`
	StorageBytes int64     `json:"storage_bytes"`
}

type DeleteOwnerResponse struct {
	Detail          string `json:"detail"`
	FilesDeleted    bool   `json:"files_deleted"`
	FilesReassigned bool   `json:"files_reassigned"`
}

type SettingsResponse struct {
	RegistrationEnabled bool    `json:"registration_enabled"`
	PublicUploadEnabled bool    `json:"public_upload_enabled"`
	DefaultUserGroupID  *uint64 `json:"default_user_group_id"`
	UploadPathTemplate  string  `json:"upload_path_template"`
}
