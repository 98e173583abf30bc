// Package s3 stores snapshot archives in Amazon S3 and keeps a catalog of
// committed archives in DynamoDB.
//
// # Usage
//
//	cfg, _ := config.LoadDefaultConfig(ctx)
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "ndb/")
//	catalog := s3.NewCatalog(dynamodb.NewFromConfig(cfg), "ndb-archives")
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart streaming uploads with CRC32C integrity checks
//   - Automatic pagination for listing
//   - Conditional writes in DynamoDB so concurrent archivers never overwrite
//     each other's catalog entries
package s3
