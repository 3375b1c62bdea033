package repo

import (
	"errors"
	"fmt"
	"log"

	"github.com/cocdeshijie/MikaniroBytes/model"
	"github.com/cocdeshijie/MikaniroBytes/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type groupSeed struct {
	name           string
	exts           []string
	maxFileSize    *int64
	maxStorageSize *int64
}

func int64Ptr(v int64) *int64 { return &v }

var defaultGroups = []groupSeed{
	{name: model.GroupSuperAdmin, exts: []string{"jpg", "png", "gif", "zip", "pdf"}},
	{name: model.GroupUsers, exts: []string{"jpg", "png", "gif"}, maxFileSize: int64Ptr(model.DefaultMaxFileSize), maxStorageSize: int64Ptr(500_000_000)},
	{name: model.GroupGuest, exts: []string{"jpg", "png", "gif"}, maxFileSize: int64Ptr(model.DefaultMaxFileSize)},
}

// Seed creates the built-in groups, the guest and admin users and the settings row.
// Existing rows are left untouched.
func Seed(db *gorm.DB, adminUsername, adminPassword string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		groups := make(map[string]*model.Group, len(defaultGroups))
		for _, seed := range defaultGroups {
			grp, err := ensureGroup(tx, seed)
			if err != nil {
				return err
			}
			groups[seed.name] = grp
		}

		if err := ensureUser(tx, model.GuestUsername, "", groups[model.GroupGuest].ID); err != nil {
			return err
		}
		if err := ensureUser(tx, adminUsername, adminPassword, groups[model.GroupSuperAdmin].ID); err != nil {
			return err
		}

		var settings model.SystemSettings
		err := tx.First(&settings).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			usersID := groups[model.GroupUsers].ID
			settings = model.SystemSettings{
				RegistrationEnabled: true,
				PublicUploadEnabled: false,
				DefaultUserGroupID:  &usersID,
				UploadPathTemplate:  model.DefaultPathTemplate,
			}
			return tx.Create(&settings).Error
		}
		return err
	})
}

func ensureGroup(tx *gorm.DB, seed groupSeed) (*model.Group, error) {
	var grp model.Group
	err := tx.Where("name = ?", seed.name).First(&grp).Error
	if err == nil {
		return &grp, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	grp = model.Group{Name: seed.name}
	if err := tx.Create(&grp).Error; err != nil {
		return nil, fmt.Errorf("create group %s: %w", seed.name, err)
	}
	settings := model.GroupSettings{
		GroupID:           grp.ID,
		AllowedExtensions: datatypes.JSONSlice[string](seed.exts),
		MaxFileSize:       seed.maxFileSize,
		MaxStorageSize:    seed.maxStorageSize,
	}
	if err := tx.Create(&settings).Error; err != nil {
		return nil, fmt.Errorf("create settings for %s: %w", seed.name, err)
	}
	log.Printf("seed: created group %s", seed.name)
	return &grp, nil
}

func ensureUser(tx *gorm.DB, username, password string, groupID uint64) error {
	var count int64
	if err := tx.Model(&model.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	user := model.User{Username: username, GroupID: &groupID}
	if password != "" {
		user.HashedPassword = utils.GetPwd(password)
	}
	if err := tx.Create(&user).Error; err != nil {
		return fmt.Errorf("create user %s: %w", username, err)
	}
	log.Printf("seed: created user %s", username)
	return nil
}
