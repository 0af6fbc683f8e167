package platemerge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"google.golang.org/api/iterator"
)

const gsPrefix = "gs://"

// IsGoogleStorage reports whether p names an object in Google Storage.
func IsGoogleStorage(p string) bool {
	return strings.HasPrefix(p, gsPrefix)
}

// SplitGoogleStoragePath splits gs://bucket/path/to/object into its bucket
// and object name.
func SplitGoogleStoragePath(p string) (bucket, object string, err error) {
	pathParts := strings.SplitN(strings.TrimPrefix(p, gsPrefix), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" {
		return "", "", fmt.Errorf("Tried to split your google storage path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

// Join joins path elements onto a directory that may be local or in Google
// Storage.
func Join(dir string, elem ...string) string {
	if IsGoogleStorage(dir) {
		return gsPrefix + path.Join(append([]string{strings.TrimPrefix(dir, gsPrefix)}, elem...)...)
	}

	return filepath.Join(append([]string{dir}, elem...)...)
}

// Base returns the last element of a local or gs:// path.
func Base(p string) string {
	if IsGoogleStorage(p) {
		return path.Base(strings.TrimSuffix(p, "/"))
	}

	return filepath.Base(p)
}

// Open opens a local file or a gs:// object for reading. A missing file or
// object yields an error satisfying errors.Is(err, os.ErrNotExist).
func Open(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
	if !IsGoogleStorage(p) {
		return os.Open(ExpandHome(p))
	}

	if client == nil {
		return nil, fmt.Errorf("%s: a storage client is required to read from google storage", p)
	}

	bucketName, objectName, err := SplitGoogleStoragePath(p)
	if err != nil {
		return nil, err
	}

	rdr, err := client.Bucket(bucketName).Object(objectName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, &os.PathError{Op: "open", Path: p, Err: os.ErrNotExist}
	} else if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}

	return rdr, nil
}

// OpenDecompressed is Open followed by MaybeDecompress.
func OpenDecompressed(ctx context.Context, p string, client *storage.Client) (io.ReadCloser, error) {
	rc, err := Open(ctx, p, client)
	if err != nil {
		return nil, err
	}

	out, err := MaybeDecompress(rc)
	if err != nil {
		rc.Close()
		return nil, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}

	return out, nil
}

// ReadAll returns the decompressed contents of a local file or gs:// object.
func ReadAll(ctx context.Context, p string, client *storage.Client) ([]byte, error) {
	rc, err := OpenDecompressed(ctx, p, client)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// Exists reports whether a local file or gs:// object is present.
func Exists(ctx context.Context, p string, client *storage.Client) (bool, error) {
	if !IsGoogleStorage(p) {
		_, err := os.Stat(ExpandHome(p))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return err == nil, err
	}

	if client == nil {
		return false, fmt.Errorf("%s: a storage client is required to read from google storage", p)
	}

	bucketName, objectName, err := SplitGoogleStoragePath(p)
	if err != nil {
		return false, err
	}

	_, err = client.Bucket(bucketName).Object(objectName).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	} else if err != nil {
		return false, pfx.Err(fmt.Errorf("%s: %w", p, err))
	}

	return true, nil
}

// ListDirs returns the full paths of the immediate sub-directories of dir,
// which may be local or a gs:// prefix.
func ListDirs(ctx context.Context, dir string, client *storage.Client) ([]string, error) {
	if !IsGoogleStorage(dir) {
		dir = ExpandHome(dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}

		out := make([]string, 0, len(entries))
		for _, entry := range entries {
			if entry.IsDir() {
				out = append(out, filepath.Join(dir, entry.Name()))
			}
		}
		return out, nil
	}

	if client == nil {
		return nil, fmt.Errorf("%s: a storage client is required to list google storage", dir)
	}

	bucketName, prefix, err := SplitGoogleStoragePath(strings.TrimSuffix(dir, "/") + "/")
	if err != nil {
		return nil, err
	}

	out := make([]string, 0)
	it := client.Bucket(bucketName).Objects(ctx, &storage.Query{Prefix: prefix, Delimiter: "/"})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		// With a delimiter set, "directories" come back as synthetic entries
		// that only carry a Prefix.
		if attrs.Prefix != "" {
			out = append(out, gsPrefix+bucketName+"/"+strings.TrimSuffix(attrs.Prefix, "/"))
		}
	}

	return out, nil
}
