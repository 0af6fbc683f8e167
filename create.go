package platemerge

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
)

// Create opens a local file or a gs:// object for writing. Parent directories
// of local files are created as needed. For gs:// objects, the upload is only
// committed by a successful Close.
func Create(ctx context.Context, p string, client *storage.Client) (io.WriteCloser, error) {
	if !IsGoogleStorage(p) {
		p = ExpandHome(p)
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, err
		}
		return os.Create(p)
	}

	if client == nil {
		return nil, fmt.Errorf("%s: a storage client is required to write to google storage", p)
	}

	bucketName, objectName, err := SplitGoogleStoragePath(p)
	if err != nil {
		return nil, err
	}

	return client.Bucket(bucketName).Object(objectName).NewWriter(ctx), nil
}
