package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// StorageConfig holds local storage and upload settings.
type StorageConfig struct {
	UploadDir           string // 上传文件根目录
	PreviewDir          string // 缩略图根目录
	DefaultPathTemplate string
	MaxUploadBytes      int64 // 与分组策略无关的请求上限
	EnforceQuota        bool
	PreviewSize         int
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		UploadDir:           getEnv("UPLOAD_DIR", "uploads"),
		PreviewDir:          getEnv("PREVIEW_DIR", "previews"),
		DefaultPathTemplate: getEnv("DEFAULT_PATH_TEMPLATE", "{Y}/{m}"),
		MaxUploadBytes:      getEnvInt64("MAX_UPLOAD_BYTES", 1<<30),
		EnforceQuota:        getEnvBool("ENFORCE_STORAGE_QUOTA", true),
		PreviewSize:         getEnvInt("PREVIEW_SIZE", 256),
	}
}

// EnsureDirs creates the storage roots and makes them absolute.
func (s *StorageConfig) EnsureDirs() error {
	for _, dir := range []*string{&s.UploadDir, &s.PreviewDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", *dir, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", abs, err)
		}
		*dir = abs
	}
	return nil
}
