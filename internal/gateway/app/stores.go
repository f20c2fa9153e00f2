package app

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"contactdir/internal/dataset"
	"contactdir/internal/gateway/config"
)

// OpenSource returns the dataset source named by cfg.Dataset.Source. The
// closer releases the database pool, if one was opened.
func OpenSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (dataset.Writer, io.Closer, error) {
	switch cfg.Dataset.Source {
	case config.SourceS3:
		s3 := cfg.Dataset.S3
		src, err := dataset.NewS3Source(dataset.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize dataset s3 source: %w", err)
		}
		logger.Info("dataset source: s3", zap.String("bucket", s3.Bucket), zap.String("endpoint", s3.Endpoint))
		return src, noClose{}, nil
	case config.SourcePostgres:
		src, err := dataset.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open dataset db: %w", err)
		}
		logger.Info("dataset source: postgres")
		return src, src, nil
	case config.SourceFile, "":
		logger.Info("dataset source: file", zap.String("dir", cfg.Dataset.Dir))
		return dataset.NewFileSource(cfg.Dataset.Dir), noClose{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown dataset source %q", cfg.Dataset.Source)
	}
}

type noClose struct{}

func (noClose) Close() error { return nil }
