package blob

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/ncecere/seat_billing/internal/config"
)

var ErrNotFound = errors.New("blob not found")

type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

type ObjectInfo struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// Store persists archived billing reports.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
}

// New builds the configured archive backend.
func New(ctx context.Context, cfg config.ArchiveConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Storage)) {
	case "s3":
		awsCfg, err := loadS3Config(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		return newS3Store(cfg.S3, awsCfg)
	default:
		return newLocalStore(cfg.Local.Directory)
	}
}
