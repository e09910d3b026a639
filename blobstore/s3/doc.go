// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "samepage/")
//
// # Features
//
//   - Managed uploads that switch to multipart for large archives
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
