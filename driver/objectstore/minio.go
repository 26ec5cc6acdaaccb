package objectstore

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// minioRegion is required by the SDK; MinIO ignores it.
const minioRegion = "us-east-1"

// NewMinIOBucket returns an S3 bucket pointed at a MinIO server with
// path-style addressing. cfg.Endpoint is a host:port without scheme.
func NewMinIOBucket(cfg BucketConfig) *S3Bucket {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	region := cfg.Region
	if region == "" {
		region = minioRegion
	}

	client := s3.New(s3.Options{
		BaseEndpoint: aws.String(fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)),
		Region:       region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: true,
	})
	return NewS3Bucket(client, cfg.Bucket)
}
