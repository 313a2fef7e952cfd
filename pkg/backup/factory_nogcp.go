//go:build !gcp

package backup

import (
	"context"
	"errors"
)

var errNoGCS = errors.New("backup: gcs support is not compiled in (build with -tags gcp)")

func openGCS(context.Context, string, string) (Store, error) {
	return nil, errNoGCS
}
