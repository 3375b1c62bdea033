package repo

import (
	"context"
	"errors"

	"github.com/cocdeshijie/MikaniroBytes/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FileStore persists file metadata rows and their previews.
type FileStore struct {
	db *gorm.DB
}

// NewFileStore creates a file metadata store.
func NewFileStore(db *gorm.DB) *FileStore {
	return &FileStore{db: db}
}

// Create inserts a file row and fills its ID.
func (s *FileStore) Create(ctx context.Context, f *model.File) error {
	return s.db.WithContext(ctx).Create(f).Error
}

// Get returns a file by ID, or nil if it does not exist.
func (s *FileStore) Get(ctx context.Context, id uint64) (*model.File, error) {
	var f model.File
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// Delete removes a file row together with its preview rows.
func (s *FileStore) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", id).Delete(&model.FilePreview{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.File{}).Error
	})
}

// SumSizeByOwner returns the total bytes stored by an owner.
func (s *FileStore) SumSizeByOwner(ctx context.Context, ownerID uint64) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).
		Model(&model.File{}).
		Where("user_id = ?", ownerID).
		Select("COALESCE(SUM(size), 0)").
		Scan(&total).Error
	return total, err
}

// CountAndSumByOwner returns the number of files and total bytes of an owner.
func (s *FileStore) CountAndSumByOwner(ctx context.Context, ownerID uint64) (int64, int64, error) {
	var row struct {
		Cnt   int64
		Total int64
	}
	err := s.db.WithContext(ctx).
		Model(&model.File{}).
		Where("user_id = ?", ownerID).
		Select("COUNT(id) AS cnt, COALESCE(SUM(size), 0) AS total").
		Scan(&row).Error
	return row.Cnt, row.Total, err
}

// FindByExactPath returns the file stored at path, or nil.
func (s *FileStore) FindByExactPath(ctx context.Context, path string) (*model.File, error) {
	var f model.File
	err := s.db.WithContext(ctx).Where("storage_path = ?", path).First(&f).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// UpdateFileType persists the classified type.
func (s *FileStore) UpdateFileType(ctx context.Context, id uint64, ft model.FileType) error {
	return s.db.WithContext(ctx).
		Model(&model.File{}).
		Where("id = ?", id).
		Update("file_type", ft).Error
}

// FindByIDs loads files by ID; a non-nil owner restricts the result to that owner.
func (s *FileStore) FindByIDs(ctx context.Context, ids []uint64, owner *uint64) ([]model.File, error) {
	var files []model.File
	if len(ids) == 0 {
		return files, nil
	}
	q := s.db.WithContext(ctx).Where("id IN ?", ids)
	if owner != nil {
		q = q.Where("user_id = ?", *owner)
	}
	err := q.Order("id").Find(&files).Error
	return files, err
}

// ListByOwner pages through an owner's files, newest first.
func (s *FileStore) ListByOwner(ctx context.Context, ownerID uint64, page, pageSize int) ([]model.File, int64, error) {
	var (
		files []model.File
		total int64
	)
	q := s.db.WithContext(ctx).Model(&model.File{}).Where("user_id = ?", ownerID).Session(&gorm.Session{})
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := q.Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&files).Error
	return files, total, err
}

// ListByOwners returns all files of the given owners, newest first.
func (s *FileStore) ListByOwners(ctx context.Context, ownerIDs []uint64) ([]model.File, error) {
	var files []model.File
	if len(ownerIDs) == 0 {
		return files, nil
	}
	err := s.db.WithContext(ctx).
		Where("user_id IN ?", ownerIDs).
		Order("id DESC").
		Find(&files).Error
	return files, err
}

// Previews returns the preview rows of a file.
func (s *FileStore) Previews(ctx context.Context, fileID uint64) ([]model.FilePreview, error) {
	var previews []model.FilePreview
	err := s.db.WithContext(ctx).Where("file_id = ?", fileID).Find(&previews).Error
	return previews, err
}

// UpsertPreview inserts or refreshes the preview of a given kind.
func (s *FileStore) UpsertPreview(ctx context.Context, p *model.FilePreview) error {
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "file_id"}, {Name: "preview_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"storage_path", "width", "height"}),
	}).Create(p).Error
}

// SetDefaultPreview marks a file as having a preview at path.
func (s *FileStore) SetDefaultPreview(ctx context.Context, fileID uint64, path string) error {
	return s.db.WithContext(ctx).
		Model(&model.File{}).
		Where("id = ?", fileID).
		Updates(map[string]interface{}{
			"has_preview":          true,
			"default_preview_path": path,
		}).Error
}

// OwnerStats is the file count and byte total of one user or group.
type OwnerStats struct {
	Files int64
	Bytes int64
}

type statRow struct {
	OwnerKey uint64
	Files    int64
	Bytes    int64
}

func toStats(rows []statRow) map[uint64]OwnerStats {
	out := make(map[uint64]OwnerStats, len(rows))
	for _, r := range rows {
		out[r.OwnerKey] = OwnerStats{Files: r.Files, Bytes: r.Bytes}
	}
	return out
}

// StatsByUser aggregates files per owning user.
func (s *FileStore) StatsByUser(ctx context.Context) (map[uint64]OwnerStats, error) {
	var rows []statRow
	err := s.db.WithContext(ctx).
		Model(&model.File{}).
		Select("user_id AS owner_key, COUNT(id) AS files, COALESCE(SUM(size), 0) AS bytes").
		Where("user_id IS NOT NULL").
		Group("user_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toStats(rows), nil
}

// StatsByGroup aggregates files per group of the owning user.
func (s *FileStore) StatsByGroup(ctx context.Context) (map[uint64]OwnerStats, error) {
	var rows []statRow
	err := s.db.WithContext(ctx).
		Table("files").
		Select("users.group_id AS owner_key, COUNT(files.id) AS files, COALESCE(SUM(files.size), 0) AS bytes").
		Joins("JOIN users ON users.id = files.user_id").
		Where("users.group_id IS NOT NULL").
		Group("users.group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toStats(rows), nil
}

// ListByGroup returns the files owned by members of a group, newest first.
func (s *FileStore) ListByGroup(ctx context.Context, groupID uint64) ([]model.File, error) {
	var files []model.File
	err := s.db.WithContext(ctx).
		Joins("JOIN users ON users.id = files.user_id").
		Where("users.group_id = ?", groupID).
		Order("files.id DESC").
		Find(&files).Error
	return files, err
}
