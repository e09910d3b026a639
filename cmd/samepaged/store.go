package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/pflag"

	"github.com/hupe1980/samepage/blobstore"
	miniostore "github.com/hupe1980/samepage/blobstore/minio"
	s3store "github.com/hupe1980/samepage/blobstore/s3"
)

// storeFlags select the object store holding the statistics archive.
type storeFlags struct {
	dir string

	s3Bucket string
	s3Prefix string
	s3Region string

	minioEndpoint  string
	minioBucket    string
	minioPrefix    string
	minioAccessKey string
	minioSecretKey string
	minioSecure    bool
}

func (f *storeFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.dir, "archive-dir", "", "Local directory for the statistics archive")
	fs.StringVar(&f.s3Bucket, "archive-s3-bucket", "", "S3 bucket for the statistics archive")
	fs.StringVar(&f.s3Prefix, "archive-s3-prefix", "samepage/", "Key prefix inside the S3 bucket")
	fs.StringVar(&f.s3Region, "archive-s3-region", "", "AWS region (default from the environment)")
	fs.StringVar(&f.minioEndpoint, "archive-minio-endpoint", "", "MinIO endpoint (host:port)")
	fs.StringVar(&f.minioBucket, "archive-minio-bucket", "", "MinIO bucket for the statistics archive")
	fs.StringVar(&f.minioPrefix, "archive-minio-prefix", "samepage/", "Key prefix inside the MinIO bucket")
	fs.StringVar(&f.minioAccessKey, "minio-access-key", "", "MinIO access key")
	fs.StringVar(&f.minioSecretKey, "minio-secret-key", "", "MinIO secret key")
	fs.BoolVar(&f.minioSecure, "minio-secure", false, "Use TLS for MinIO")
}

// open returns the configured store, or nil if none is configured.
func (f *storeFlags) open(ctx context.Context) (blobstore.Store, error) {
	n := 0
	for _, set := range []bool{f.dir != "", f.s3Bucket != "", f.minioEndpoint != ""} {
		if set {
			n++
		}
	}
	if n > 1 {
		return nil, errors.New("at most one of --archive-dir, --archive-s3-bucket and --archive-minio-endpoint may be set")
	}

	switch {
	case f.dir != "":
		return blobstore.NewLocalStore(f.dir), nil

	case f.s3Bucket != "":
		var optFns []func(*config.LoadOptions) error
		if f.s3Region != "" {
			optFns = append(optFns, config.WithRegion(f.s3Region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, optFns...)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		return s3store.NewStore(awss3.NewFromConfig(cfg), f.s3Bucket, f.s3Prefix), nil

	case f.minioEndpoint != "":
		if f.minioBucket == "" {
			return nil, errors.New("--archive-minio-bucket is required with --archive-minio-endpoint")
		}
		client, err := minio.New(f.minioEndpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(f.minioAccessKey, f.minioSecretKey, ""),
			Secure: f.minioSecure,
		})
		if err != nil {
			return nil, fmt.Errorf("create MinIO client: %w", err)
		}
		return miniostore.NewStore(client, f.minioBucket, f.minioPrefix), nil

	default:
		return nil, nil
	}
}
