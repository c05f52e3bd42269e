package storager

import (
	"context"
	"fmt"
	"os"

	_ "go.beyondstorage.io/services/fs/v4"
	_ "go.beyondstorage.io/services/minio"
	_ "go.beyondstorage.io/services/s3/v3"

	"go.beyondstorage.io/v5/services"
	"go.beyondstorage.io/v5/types"
)

// New opens the storage service described by connStr, for example
// "fs:///var/archives" or "s3://bucket/prefix?credential=hmac:key:secret".
func New(connStr string) (types.Storager, error) {
	return services.NewStoragerFromString(connStr)
}

// Upload copies the local file at path into store under key.
func Upload(ctx context.Context, store types.Storager, path string, key string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to get file stat: %w", err)
	}

	n, err := store.WriteWithContext(ctx, key, file, stat.Size())
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", key, err)
	}

	return n, nil
}
