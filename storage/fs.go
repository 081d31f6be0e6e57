// Package storage implements the filesystem adapter workers use to
// read and write partition data, over gocloud.dev/blob so the same
// code speaks local disk, S3, and GCS without a scheme-specific
// branch in the caller.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/blockmeshdb/coordinator/errors"
)

const (
	ErrCodeOutOfRange errors.Code = "OutOfRange"
)

// Info describes one object a filesystem lists or inspects. ModTime
// feeds the spec provider's content-change signature alongside Size,
// so a file rewritten in place at the same path is detected as
// changed even though its path never does.
type Info struct {
	Path    string
	Size    int64
	IsDir   bool
	ModTime time.Time
}

// FileSystem is the adapter contract every scheme (local/s3/gs/abfs)
// must satisfy. abfs has no driver wired in yet; see the module's
// design notes for why.
type FileSystem interface {
	List(ctx context.Context, prefix string) ([]Info, error)
	Read(ctx context.Context, path string) ([]byte, error)
	Info(ctx context.Context, path string) (Info, error)
	Copy(ctx context.Context, src, dst string) error
	Sync(ctx context.Context, local, remote string) error
	Temp(ctx context.Context) (string, error)
	Remove(ctx context.Context, path string) error
}

// BlobFileSystem adapts a gocloud.dev/blob.Bucket, opened against a
// scheme-qualified URL (file://, s3://, gs://), to FileSystem.
type BlobFileSystem struct {
	bucket *blob.Bucket
	tmpDir string
}

// Open resolves urlstr (e.g. "s3://my-bucket") to a Bucket and wraps
// it. tmpDir is where Temp allocates scratch files; it's the caller's
// job to have already created it.
func Open(ctx context.Context, urlstr, tmpDir string) (*BlobFileSystem, error) {
	bucket, err := blob.OpenBucket(ctx, urlstr)
	if err != nil {
		return nil, errors.Wrapf(err, "opening bucket %s", urlstr)
	}
	return &BlobFileSystem{bucket: bucket, tmpDir: tmpDir}, nil
}

func (f *BlobFileSystem) Close() error {
	return f.bucket.Close()
}

func (f *BlobFileSystem) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	iter := f.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", prefix)
		}
		out = append(out, Info{Path: obj.Key, Size: obj.Size, IsDir: obj.IsDir, ModTime: obj.ModTime})
	}
	return out, nil
}

func (f *BlobFileSystem) Read(ctx context.Context, path string) ([]byte, error) {
	b, err := f.bucket.ReadAll(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	return b, nil
}

func (f *BlobFileSystem) Info(ctx context.Context, path string) (Info, error) {
	attrs, err := f.bucket.Attributes(ctx, path)
	if err != nil {
		return Info{}, errors.Wrapf(err, "stat %s", path)
	}
	return Info{Path: path, Size: attrs.Size, ModTime: attrs.ModTime}, nil
}

func (f *BlobFileSystem) Copy(ctx context.Context, src, dst string) error {
	if err := f.bucket.Copy(ctx, dst, src, nil); err != nil {
		return errors.Wrapf(err, "copying %s to %s", src, dst)
	}
	return nil
}

// Sync uploads local's bytes to remote within the same bucket. Cross-
// bucket sync would need a second Bucket handle; single-bucket is
// what workers actually need, since they read and write partitions
// within one configured store.
func (f *BlobFileSystem) Sync(ctx context.Context, local, remote string) error {
	b, err := f.bucket.ReadAll(ctx, local)
	if err != nil {
		return errors.Wrapf(err, "reading %s for sync", local)
	}
	w, err := f.bucket.NewWriter(ctx, remote, nil)
	if err != nil {
		return errors.Wrapf(err, "opening writer for %s", remote)
	}
	if _, err := w.Write(b); err != nil {
		w.Close()
		return errors.Wrapf(err, "writing %s", remote)
	}
	return w.Close()
}

func (f *BlobFileSystem) Temp(ctx context.Context) (string, error) {
	return f.tmpDir + "/" + randomSuffix(), nil
}

func (f *BlobFileSystem) Remove(ctx context.Context, path string) error {
	if err := f.bucket.Delete(ctx, path); err != nil {
		return errors.Wrapf(err, "removing %s", path)
	}
	return nil
}

var _ FileSystem = (*BlobFileSystem)(nil)

// SchemeFor maps one of the schemes named in the filesystem adapter
// contract (local/s3/gs/abfs) to the gocloud.dev URL scheme that
// drives it. abfs has no wired driver; callers get ErrCodeOutOfRange.
func SchemeFor(scheme string) (string, error) {
	switch strings.ToLower(scheme) {
	case "local":
		return "file", nil
	case "s3":
		return "s3", nil
	case "gs":
		return "gs", nil
	case "abfs":
		return "", errors.New(ErrCodeOutOfRange, "abfs scheme has no wired blob driver")
	default:
		return "", errors.New(ErrCodeOutOfRange, "unknown filesystem scheme: "+scheme)
	}
}

var tempCounter int64

func randomSuffix() string {
	// A worker's temp file only needs to be unique within its own
	// process; the coordinator never reads these paths back.
	n := atomic.AddInt64(&tempCounter, 1)
	return fmt.Sprintf("tmp-%d-%d", time.Now().UnixNano(), n)
}
