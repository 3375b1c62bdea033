package dto

import "encoding/json"

// Optional records whether a JSON field was present, so null can be told apart from omitted.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

// Some returns a present, non-null Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type ChangeUsernameRequest struct {
	NewUsername string `json:"new_username"`
}

type TokenCheckRequest struct {
	Token string `json:"token" binding:"required"`
}

type FileIDsRequest struct {
	IDs []uint64 `json:"ids"`
}

type GroupCreateRequest struct {
	Name              string   `json:"name" binding:"required"`
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxFileSize       *int64   `json:"max_file_size"`
	MaxStorageSize    *int64   `json:"max_storage_size"`
}

type GroupUpdateRequest struct {
	Name              *string            `json:"name"`
	AllowedExtensions Optional[[]string] `json:"allowed_extensions"`
	MaxFileSize       Optional[int64]    `json:"max_file_size"`
	MaxStorageSize    Optional[int64]    `json:"max_storage_size"`
}

type UserGroupUpdateRequest struct {
	GroupID uint64 `json:"group_id" binding:"required"`
}

type SettingsUpdateRequest struct {
	RegistrationEnabled *bool   `json:"registration_enabled"`
	PublicUploadEnabled *bool   `json:"public_upload_enabled"`
	DefaultUserGroupID  *uint64 `json:"default_user_group_id"`
	UploadPathTemplate  *string `json:"upload_path_template"`
}
