package preview

import (
	"context"
	"fmt"
	"log"

	"github.com/cocdeshijie/MikaniroBytes/internal/metrics"
	"github.com/cocdeshijie/MikaniroBytes/internal/repo"
	"github.com/cocdeshijie/MikaniroBytes/internal/storage"
	"github.com/cocdeshijie/MikaniroBytes/model"

	"gorm.io/gorm"
)

// Runner generates previews for stored files.
type Runner struct {
	db       *gorm.DB
	uploads  storage.Store
	registry *Registry
}

// NewRunner creates a preview runner.
func NewRunner(db *gorm.DB, uploads storage.Store, registry *Registry) *Runner {
	return &Runner{db: db, uploads: uploads, registry: registry}
}

// Run loads the file and generates its preview. Failures are logged and
// leave has_preview false; the file itself is never affected.
func (r *Runner) Run(fileID uint64) {
	defer func() {
		if rec := recover(); rec != nil {
			metrics.PreviewsTotal.WithLabelValues(metrics.ResultFailed).Inc()
			log.Printf("preview: file %d panicked: %v", fileID, rec)
		}
	}()

	result, err := r.Generate(context.Background(), fileID)
	switch {
	case err != nil:
		metrics.PreviewsTotal.WithLabelValues(metrics.ResultFailed).Inc()
		log.Printf("preview: file %d failed: %v", fileID, err)
	case result == nil:
		metrics.PreviewsTotal.WithLabelValues(metrics.ResultSkipped).Inc()
	default:
		metrics.PreviewsTotal.WithLabelValues(metrics.ResultOK).Inc()
	}
}

// Generate runs the registered generator for one file and records the result.
// It returns (nil, nil) when the file is gone or its type has no generator.
func (r *Runner) Generate(ctx context.Context, fileID uint64) (*Result, error) {
	// 后台任务使用独立会话, 不继承请求的事务状态
	files := repo.NewFileStore(r.db.Session(&gorm.Session{NewDB: true, Context: ctx}))

	f, err := files.Get(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	if f == nil || f.StorageType != model.StorageTypeLocal {
		return nil, nil
	}
	gen, ok := r.registry.Lookup(f.FileType)
	if !ok {
		return nil, nil
	}

	abs, err := r.uploads.Resolve(f.RelPath())
	if err != nil {
		return nil, err
	}
	result, err := gen.Generate(ctx, abs, f.RelPath())
	if err != nil {
		return nil, err
	}

	if err := files.UpsertPreview(ctx, &model.FilePreview{
		FileID:      f.ID,
		PreviewType: result.Kind,
		StoragePath: result.RelPath,
		Width:       result.Width,
		Height:      result.Height,
	}); err != nil {
		return nil, fmt.Errorf("save preview: %w", err)
	}
	if err := files.SetDefaultPreview(ctx, f.ID, result.RelPath); err != nil {
		return nil, fmt.Errorf("mark preview: %w", err)
	}
	return result, nil
}
