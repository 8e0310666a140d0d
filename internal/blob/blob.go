// Package blob selects the artifact store backend used for report exports.
package blob

import (
	"context"
	"fmt"
	"strings"

	"pcx/internal/blob/core"
	"pcx/internal/infra/blob/fs"
	memorystore "pcx/internal/infra/blob/memory"
	"pcx/internal/infra/blob/s3"
)

type (
	Driver           = core.Driver
	PutOptions       = core.PutOptions
	SignedURLOptions = core.SignedURLOptions
	Info             = core.Info
	Store            = core.Store
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

var (
	ErrUnsupported = core.ErrUnsupported
	ErrNotFound    = core.ErrNotFound
	ErrExists      = core.ErrExists
)

// S3Options mirrors the s3 backend configuration.
type S3Options = s3.Config

// Options selects and configures a backend. An empty driver means fs.
type Options struct {
	Driver  Driver
	FSRoot  string
	BaseURL string
	S3      S3Options
}

// Open returns the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(string(opts.Driver))))
	switch driver {
	case "", DriverFilesystem:
		store, err := fs.New(opts.FSRoot, opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("open fs blob store: %w", err)
		}
		return store, nil
	case DriverMemory:
		return memorystore.New(), nil
	case DriverS3:
		store, err := s3.New(ctx, opts.S3)
		if err != nil {
			return nil, fmt.Errorf("open s3 blob store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", opts.Driver)
	}
}
