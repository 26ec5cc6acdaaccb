//go:build integration

package objectstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"

	"github.com/adrianmcphee/smartermodel"
)

// Run with: go test -tags integration -run TestIntegration_MinIO ./driver/objectstore
func TestIntegration_MinIO(t *testing.T) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			t.Skipf("Docker daemon not available: %v", r)
		}
	}()

	container, err := minio.Run(ctx,
		"minio/minio:latest",
		testcontainers.WithEnv(map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		}),
	)
	if err != nil {
		t.Skipf("failed to start MinIO container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate MinIO container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	cfg := BucketConfig{
		Type:            "minio",
		Bucket:          "smartermodel-test",
		Endpoint:        endpoint,
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
	}
	bucket := NewMinIOBucket(cfg)
	_, err = bucket.client.(*s3.Client).CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(cfg.Bucket)})
	require.NoError(t, err)

	runBucketCompliance(t, bucket)

	d, err := Open(ctx, cfg)
	require.NoError(t, err)
	desc := docDescriptor(d.ID())
	require.NoError(t, d.Save(ctx, desc, &doc{Base: smartermodel.Base{ID: "m1"}, Title: "stored", Pages: 1}))
	got, err := d.Get(ctx, desc, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "stored", got.(*doc).Title)
}
