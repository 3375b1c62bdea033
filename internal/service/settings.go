package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cocdeshijie/MikaniroBytes/internal/cache"
	"github.com/cocdeshijie/MikaniroBytes/internal/policy"
	"github.com/cocdeshijie/MikaniroBytes/model"

	"gorm.io/gorm"
)

// Identity is a resolved user together with the policy of its group.
type Identity struct {
	UserID    uint64         `json:"user_id"`
	Username  string         `json:"username"`
	GroupID   *uint64        `json:"group_id"`
	GroupName string         `json:"group_name"`
	Policy    *policy.Policy `json:"policy"`
}

// IsSuperAdmin reports whether the identity belongs to SUPER_ADMIN.
func (i *Identity) IsSuperAdmin() bool {
	return i != nil && strings.EqualFold(i.GroupName, model.GroupSuperAdmin)
}

// SettingsService reads system settings and user identities through the cache.
type SettingsService struct {
	db              *gorm.DB
	cache           cache.Cache
	ttl             time.Duration
	defaultTemplate string
}

// NewSettingsService creates a settings reader. cache may be nil.
func NewSettingsService(db *gorm.DB, c cache.Cache, ttl time.Duration, defaultTemplate string) *SettingsService {
	if defaultTemplate == "" {
		defaultTemplate = model.DefaultPathTemplate
	}
	return &SettingsService{db: db, cache: c, ttl: ttl, defaultTemplate: defaultTemplate}
}

func (s *SettingsService) cacheGet(ctx context.Context, key string, dest interface{}) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	if err != nil && !errors.Is(err, cache.ErrMiss) {
		log.Printf("settings: cache get %s: %v", key, err)
	}
	return err == nil
}

func (s *SettingsService) cacheSet(ctx context.Context, key string, value interface{}) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		log.Printf("settings: cache set %s: %v", key, err)
	}
}

func (s *SettingsService) cacheDelete(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		log.Printf("settings: cache delete %s: %v", key, err)
	}
}

func (s *SettingsService) cacheDeletePrefix(ctx context.Context, prefix string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPrefix(ctx, prefix); err != nil {
		log.Printf("settings: cache delete %s*: %v", prefix, err)
	}
}

// Get returns the system settings row, or defaults when none exists.
func (s *SettingsService) Get(ctx context.Context) (*model.SystemSettings, error) {
	var settings model.SystemSettings
	if s.cacheGet(ctx, cache.KeySystemSettings, &settings) {
		return &settings, nil
	}
	err := s.db.WithContext(ctx).Order("id").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &model.SystemSettings{
			RegistrationEnabled: true,
			UploadPathTemplate:  s.defaultTemplate,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, cache.KeySystemSettings, &settings)
	return &settings, nil
}

// PathTemplate returns the configured upload template or the default.
func (s *SettingsService) PathTemplate(settings *model.SystemSettings) string {
	if settings != nil && strings.TrimSpace(settings.UploadPathTemplate) != "" {
		return settings.UploadPathTemplate
	}
	return s.defaultTemplate
}

// Identity loads a user with its group policy. It returns nil when the user does not exist.
func (s *SettingsService) Identity(ctx context.Context, userID uint64) (*Identity, error) {
	key := cache.BuildCacheKey(cache.KeyUserIdentity, userID)
	var ident Identity
	if s.cacheGet(ctx, key, &ident) {
		return &ident, nil
	}

	var user model.User
	err := s.db.WithContext(ctx).Preload("Group.Settings").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := identityOf(&user)
	s.cacheSet(ctx, key, out)
	return out, nil
}

// Guest returns the identity anonymous uploads are stored under, or nil if the guest user is missing.
func (s *SettingsService) Guest(ctx context.Context) (*Identity, error) {
	var user model.User
	err := s.db.WithContext(ctx).
		Preload("Group.Settings").
		Where("username = ?", model.GuestUsername).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return identityOf(&user), nil
}

func identityOf(user *model.User) *Identity {
	ident := &Identity{
		UserID:   user.ID,
		Username: user.Username,
		GroupID:  user.GroupID,
	}
	if user.Group != nil {
		ident.GroupName = user.Group.Name
		ident.Policy = policyOf(user.Group.Settings)
	}
	return ident
}

// policyOf converts stored group settings; no settings row means no constraints.
func policyOf(gs *model.GroupSettings) *policy.Policy {
	if gs == nil {
		return nil
	}
	return &policy.Policy{
		AllowedExtensions: []string(gs.AllowedExtensions),
		MaxFileSize:       gs.MaxFileSize,
		MaxStorageSize:    gs.MaxStorageSize,
	}
}

func (s *SettingsService) InvalidateSettings(ctx context.Context) {
	s.cacheDelete(ctx, cache.KeySystemSettings)
}

func (s *SettingsService) InvalidateIdentity(ctx context.Context, userID uint64) {
	s.cacheDelete(ctx, cache.BuildCacheKey(cache.KeyUserIdentity, userID))
}

func (s *SettingsService) InvalidateIdentities(ctx context.Context) {
	s.cacheDeletePrefix(ctx, cache.KeyUserIdentity+":")
}
