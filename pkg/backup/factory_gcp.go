//go:build gcp

package backup

import "context"

func openGCS(ctx context.Context, bucket, prefix string) (Store, error) {
	return NewGCSStore(ctx, GCSConfig{Bucket: bucket, Prefix: prefix})
}
