// Package minio stores snapshot archives in MinIO and other S3-compatible
// object stores (Ceph, Garage, SeaweedFS) through the MinIO client.
//
// # Basic Usage
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	store := minioblob.NewStore(client, "my-bucket", "ndb/")
//	archiver := ndb.NewArchiver(store, blobstore.NewMemoryCatalog())
//
// Unlike the s3 package this one carries no AWS SDK dependency, which suits
// air-gapped deployments.
package minio
