package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/cocdeshijie/MikaniroBytes/internal/cache"
	"github.com/cocdeshijie/MikaniroBytes/internal/dto"
	"github.com/cocdeshijie/MikaniroBytes/internal/repo"
	"github.com/cocdeshijie/MikaniroBytes/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AdminService implements SUPER_ADMIN group, user and settings management.
type AdminService struct {
	db       *gorm.DB
	files    *repo.FileStore
	fileSvc  *FileService
	settings *SettingsService
}

// NewAdminService creates the admin service.
func NewAdminService(db *gorm.DB, files *repo.FileStore, fileSvc *FileService, settings *SettingsService) *AdminService {
	return &AdminService{db: db, files: files, fileSvc: fileSvc, settings: settings}
}

func (s *AdminService) loadGroup(ctx context.Context, id uint64) (*model.Group, error) {
	var group model.Group
	err := s.db.WithContext(ctx).Preload("Settings").Where("id = ?", id).First(&group).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func groupItem(g *model.Group, stats repo.OwnerStats) dto.GroupItem {
	item := dto.GroupItem{
		ID:                g.ID,
		Name:              g.Name,
		AllowedExtensions: []string{},
		FileCount:         stats.Files,
		StorageBytes:      stats.Bytes,
	}
	if g.Settings != nil {
		if g.Settings.AllowedExtensions != nil {
			item.AllowedExtensions = []string(g.Settings.AllowedExtensions)
		}
		item.MaxFileSize = g.Settings.MaxFileSize
		item.MaxStorageSize = g.Settings.MaxStorageSize
	}
	return item
}

func (s *AdminService) groupStats(ctx context.Context, id uint64) (repo.OwnerStats, error) {
	stats, err := s.files.StatsByGroup(ctx)
	if err != nil {
		return repo.OwnerStats{}, err
	}
	return stats[id], nil
}

// ListGroups returns every group with its file totals.
func (s *AdminService) ListGroups(ctx context.Context) ([]dto.GroupItem, error) {
	var groups []model.Group
	if err := s.db.WithContext(ctx).Preload("Settings").Order("id").Find(&groups).Error; err != nil {
		return nil, internal("list groups", err)
	}
	stats, err := s.files.StatsByGroup(ctx)
	if err != nil {
		return nil, internal("group stats", err)
	}
	out := make([]dto.GroupItem, 0, len(groups))
	for i := range groups {
		out = append(out, groupItem(&groups[i], stats[groups[i].ID]))
	}
	return out, nil
}

func normalizeExtensions(exts []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(exts))
	seen := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" {
			continue
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

func (s *AdminService) nameTaken(ctx context.Context, name string, except uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Group{}).
		Where("name = ? AND id <> ?", name, except).
		Count(&count).Error
	return count > 0, err
}

// CreateGroup adds a group with its upload settings. Nil limits mean unlimited.
func (s *AdminService) CreateGroup(ctx context.Context, req dto.GroupCreateRequest) (*dto.GroupItem, error) {
	name := strings.ToUpper(strings.TrimSpace(req.Name))
	if name == "" {
		return nil, badRequest("Group name cannot be empty.")
	}
	if model.IsImmutableGroup(name) {
		return nil, badRequest("Reserved group name.")
	}
	taken, err := s.nameTaken(ctx, name, 0)
	if err != nil {
		return nil, internal("check group", err)
	}
	if taken {
		return nil, badRequest("Group already exists.")
	}

	group := &model.Group{
		Name: name,
		Settings: &model.GroupSettings{
			AllowedExtensions: normalizeExtensions(req.AllowedExtensions),
			MaxFileSize:       req.MaxFileSize,
			MaxStorageSize:    req.MaxStorageSize,
		},
	}
	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		if repo.IsDuplicateKey(err) {
			return nil, badRequest("Group already exists.")
		}
		return nil, internal("create group", err)
	}
	item := groupItem(group, repo.OwnerStats{})
	return &item, nil
}

// UpdateGroup renames a group or changes its settings. Omitted fields are kept; null limits become unlimited.
func (s *AdminService) UpdateGroup(ctx context.Context, id uint64, req dto.GroupUpdateRequest) (*dto.GroupItem, error) {
	group, err := s.loadGroup(ctx, id)
	if err != nil {
		return nil, internal("load group", err)
	}
	if group == nil {
		return nil, notFound("Group not found.")
	}

	if req.Name != nil {
		name := strings.ToUpper(strings.TrimSpace(*req.Name))
		if name != "" && name != group.Name {
			if model.IsImmutableGroup(group.Name) {
				return nil, badRequest("Cannot rename built-in group.")
			}
			if model.IsImmutableGroup(name) {
				return nil, badRequest("Reserved group name.")
			}
			taken, err := s.nameTaken(ctx, name, group.ID)
			if err != nil {
				return nil, internal("check group", err)
			}
			if taken {
				return nil, badRequest("Name is already in use.")
			}
			group.Name = name
		}
	}

	settings := group.Settings
	if settings == nil {
		settings = &model.GroupSettings{GroupID: group.ID}
	}
	if req.AllowedExtensions.Set {
		var exts []string
		if req.AllowedExtensions.Value != nil {
			exts = *req.AllowedExtensions.Value
		}
		settings.AllowedExtensions = normalizeExtensions(exts)
	}
	if req.MaxFileSize.Set {
		settings.MaxFileSize = req.MaxFileSize.Value
	}
	if req.MaxStorageSize.Set {
		settings.MaxStorageSize = req.MaxStorageSize.Value
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Group{}).Where("id = ?", group.ID).Update("name", group.Name).Error; err != nil {
			return err
		}
		// Save 会写入 nil 值, 用于清除限制
		return tx.Save(settings).Error
	})
	if err != nil {
		return nil, internal("update group", err)
	}
	group.Settings = settings
	s.settings.InvalidateIdentities(ctx)

	stats, err := s.groupStats(ctx, group.ID)
	if err != nil {
		return nil, internal("group stats", err)
	}
	item := groupItem(group, stats)
	return &item, nil
}

func (s *AdminService) guestUser(ctx context.Context) (*model.User, error) {
	var guest model.User
	err := s.db.WithContext(ctx).
		Joins("JOIN user_groups ON user_groups.id = users.group_id").
		Where("user_groups.name = ? AND users.username = ?", model.GroupGuest, model.GuestUsername).
		First(&guest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(http.StatusInternalServerError, "Guest user missing, run init-db first.")
	}
	if err != nil {
		return nil, internal("load guest", err)
	}
	return &guest, nil
}

// releaseFiles deletes or hands over to guest the files of the given users.
func (s *AdminService) releaseFiles(ctx context.Context, userIDs []uint64, deleteFiles bool) error {
	if len(userIDs) == 0 {
		return nil
	}
	if deleteFiles {
		rows, err := s.files.ListByOwners(ctx, userIDs)
		if err != nil {
			return internal("list files", err)
		}
		for i := range rows {
			if err := s.fileSvc.Remove(ctx, &rows[i]); err != nil {
				return internal(fmt.Sprintf("delete file %d", rows[i].ID), err)
			}
		}
		return nil
	}
	guest, err := s.guestUser(ctx)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Model(&model.File{}).
		Where("user_id IN ?", userIDs).
		Update("user_id", guest.ID).Error
	if err != nil {
		return internal("reassign files", err)
	}
	return nil
}

func (s *AdminService) dropUsers(ctx context.Context, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id IN ?", userIDs).Delete(&model.UserSession{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", userIDs).Delete(&model.User{}).Error
	})
	if err != nil {
		return internal("delete users", err)
	}
	s.settings.cacheDeletePrefix(ctx, cache.KeySession+":")
	for _, id := range userIDs {
		s.settings.InvalidateIdentity(ctx, id)
	}
	return nil
}

// DeleteGroup removes a group and its members. Member files are deleted or reassigned to guest.
func (s *AdminService) DeleteGroup(ctx context.Context, id uint64, deleteFiles bool) (*dto.DeleteOwnerResponse, error) {
	group, err := s.loadGroup(ctx, id)
	if err != nil {
		return nil, internal("load group", err)
	}
	if group == nil {
		return nil, notFound("Group not found.")
	}
	if model.IsImmutableGroup(group.Name) {
		return nil, badRequest(fmt.Sprintf("Cannot delete %s.", group.Name))
	}

	var fallback model.Group
	err = s.db.WithContext(ctx).
		Where("id <> ? AND name NOT IN ?", id, []string{model.GroupSuperAdmin, model.GroupGuest}).
		Order("id DESC").
		First(&fallback).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, badRequest("At least one non-admin group must remain.")
	}
	if err != nil {
		return nil, internal("find fallback group", err)
	}

	var userIDs []uint64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("group_id = ?", id).Pluck("id", &userIDs).Error; err != nil {
		return nil, internal("list members", err)
	}
	if err := s.releaseFiles(ctx, userIDs, deleteFiles); err != nil {
		return nil, err
	}
	if err := s.dropUsers(ctx, userIDs); err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.SystemSettings{}).
			Where("default_user_group_id = ?", id).
			Update("default_user_group_id", fallback.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", id).Delete(&model.GroupSettings{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Group{}).Error
	})
	if err != nil {
		return nil, internal("delete group", err)
	}
	s.settings.InvalidateSettings(ctx)

	return &dto.DeleteOwnerResponse{
		Detail:          fmt.Sprintf("Group '%s' deleted.", group.Name),
		FilesDeleted:    deleteFiles,
		FilesReassigned: !deleteFiles,
	}, nil
}

// GroupFiles lists the files of every member of a group.
func (s *AdminService) GroupFiles(ctx context.Context, id uint64) ([]dto.FileItem, error) {
	rows, err := s.files.ListByGroup(ctx, id)
	if err != nil {
		return nil, internal("list files", err)
	}
	return s.fileSvc.Items(rows), nil
}

func userItem(u *model.User, stats repo.OwnerStats) dto.UserItem {
	item := dto.UserItem{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		FileCount:    stats.Files,
		StorageBytes: stats.Bytes,
	}
	if u.Group != nil {
		item.Group = &dto.GroupRef{ID: u.Group.ID, Name: u.Group.Name}
	}
	return item
}

func (s *AdminService) loadUser(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := s.db.WithContext(ctx).Preload("Group").Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound("User not found.")
	}
	if err != nil {
		return nil, internal("load user", err)
	}
	return &user, nil
}

// ListUsers lists users, optionally only one group's members.
func (s *AdminService) ListUsers(ctx context.Context, groupID *uint64) ([]dto.UserItem, error) {
	var users []model.User
	q := s.db.WithContext(ctx).Preload("Group").Order("id")
	if groupID != nil {
		q = q.Where("group_id = ?", *groupID)
	}
	if err := q.Find(&users).Error; err != nil {
		return nil, internal("list users", err)
	}
	stats, err := s.files.StatsByUser(ctx)
	if err != nil {
		return nil, internal("user stats", err)
	}
	out := make([]dto.UserItem, 0, len(users))
	for i := range users {
		out = append(out, userItem(&users[i], stats[users[i].ID]))
	}
	return out, nil
}

// UpdateUserGroup moves a user to another normal group.
func (s *AdminService) UpdateUserGroup(ctx context.Context, userID, groupID uint64) (*dto.UserItem, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Group != nil && model.IsImmutableGroup(user.Group.Name) {
		return nil, badRequest(fmt.Sprintf("Cannot modify %s user.", user.Group.Name))
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return nil, internal("load group", err)
	}
	if group == nil {
		return nil, badRequest("Group not found.")
	}
	if model.IsImmutableGroup(group.Name) {
		return nil, badRequest(fmt.Sprintf("Cannot assign users to %s.", group.Name))
	}
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", user.ID).Update("group_id", group.ID).Error; err != nil {
		return nil, internal("update user", err)
	}
	s.settings.InvalidateIdentity(ctx, user.ID)

	user.GroupID = &group.ID
	user.Group = group
	cnt, total, err := s.files.CountAndSumByOwner(ctx, user.ID)
	if err != nil {
		return nil, internal("user stats", err)
	}
	item := userItem(user, repo.OwnerStats{Files: cnt, Bytes: total})
	return &item, nil
}

// DeleteUser removes a user with its sessions; files are deleted or reassigned to guest.
func (s *AdminService) DeleteUser(ctx context.Context, userID uint64, deleteFiles bool) (*dto.DeleteOwnerResponse, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Group != nil && model.IsImmutableGroup(user.Group.Name) {
		return nil, badRequest(fmt.Sprintf("Cannot delete %s user.", user.Group.Name))
	}
	ids := []uint64{user.ID}
	if err := s.releaseFiles(ctx, ids, deleteFiles); err != nil {
		return nil, err
	}
	if err := s.dropUsers(ctx, ids); err != nil {
		return nil, err
	}
	return &dto.DeleteOwnerResponse{
		Detail:          fmt.Sprintf("User %s deleted.", user.Username),
		FilesDeleted:    deleteFiles,
		FilesReassigned: !deleteFiles,
	}, nil
}

// UserFiles lists every file of a user.
func (s *AdminService) UserFiles(ctx context.Context, userID uint64) ([]dto.FileItem, error) {
	rows, err := s.files.ListByOwners(ctx, []uint64{userID})
	if err != nil {
		return nil, internal("list files", err)
	}
	return s.fileSvc.Items(rows), nil
}

func settingsResponse(st *model.SystemSettings) *dto.SettingsResponse {
	return &dto.SettingsResponse{
		RegistrationEnabled: st.RegistrationEnabled,
		PublicUploadEnabled: st.PublicUploadEnabled,
		DefaultUserGroupID:  st.DefaultUserGroupID,
		UploadPathTemplate:  st.UploadPathTemplate,
	}
}

// GetSettings returns the system settings.
func (s *AdminService) GetSettings(ctx context.Context) (*dto.SettingsResponse, error) {
	st, err := s.settings.Get(ctx)
	if err != nil {
		return nil, internal("load settings", err)
	}
	return settingsResponse(st), nil
}

// ValidTemplate rejects absolute templates and parent references.
func ValidTemplate(tmpl string) bool {
	return !strings.HasPrefix(tmpl, "/") && !strings.HasPrefix(tmpl, `\`) && !strings.Contains(tmpl, "..")
}

// UpdateSettings applies the present fields to the settings row, creating it if needed.
func (s *AdminService) UpdateSettings(ctx context.Context, req dto.SettingsUpdateRequest) (*dto.SettingsResponse, error) {
	var st model.SystemSettings
	err := s.db.WithContext(ctx).Order("id").First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		st = model.SystemSettings{RegistrationEnabled: true, UploadPathTemplate: model.DefaultPathTemplate}
		if err := s.db.WithContext(ctx).Create(&st).Error; err != nil {
			return nil, internal("create settings", err)
		}
	} else if err != nil {
		return nil, internal("load settings", err)
	}

	updates := map[string]interface{}{}
	if req.RegistrationEnabled != nil {
		st.RegistrationEnabled = *req.RegistrationEnabled
		updates["registration_enabled"] = st.RegistrationEnabled
	}
	if req.PublicUploadEnabled != nil {
		st.PublicUploadEnabled = *req.PublicUploadEnabled
		updates["public_upload_enabled"] = st.PublicUploadEnabled
	}
	if req.DefaultUserGroupID != nil {
		group, err := s.loadGroup(ctx, *req.DefaultUserGroupID)
		if err != nil {
			return nil, internal("load group", err)
		}
		if group == nil {
			return nil, badRequest("Group not found.")
		}
		if model.IsImmutableGroup(group.Name) {
			return nil, badRequest(fmt.Sprintf("%s cannot be the default user group.", group.Name))
		}
		st.DefaultUserGroupID = &group.ID
		updates["default_user_group_id"] = group.ID
	}
	if req.UploadPathTemplate != nil {
		if !ValidTemplate(*req.UploadPathTemplate) {
			return nil, badRequest("Invalid path template.")
		}
		tmpl := strings.TrimSpace(*req.UploadPathTemplate)
		if tmpl == "" {
			tmpl = model.DefaultPathTemplate
		}
		st.UploadPathTemplate = tmpl
		updates["upload_path_template"] = tmpl
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(&model.SystemSettings{}).Where("id = ?", st.ID).Updates(updates).Error; err != nil {
			return nil, internal("update settings", err)
		}
		s.settings.InvalidateSettings(ctx)
	}
	return settingsResponse(&st), nil
}
