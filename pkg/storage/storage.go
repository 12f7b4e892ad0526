// Package storage writes synthesized audio to a destination named by a
// URI: a local path or s3://bucket/key.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Store holds named objects. Keys are forward-slash separated.
type Store interface {
	// Put stores body under key, replacing any existing object.
	Put(ctx context.Context, key string, body io.Reader, contentType string) error

	// Get opens key for reading. Missing keys return an error wrapping
	// fs.ErrNotExist.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete is a no-op for missing keys.
	Delete(ctx context.Context, key string) error

	Exists(ctx context.Context, key string) (bool, error)

	// URI renders key as a location string for display.
	URI(key string) string
}

// Target is a parsed output location.
type Target struct {
	Scheme string // "file" or "s3"
	Bucket string
	Key    string
	Dir    string
}

// ParseTarget splits a destination into its store root and key.
// Anything without an s3:// scheme is a local path.
func ParseTarget(dest string) (Target, error) {
	if dest == "" {
		return Target{}, errors.New("storage: empty destination")
	}
	if !strings.HasPrefix(dest, "s3://") {
		dir, file := filepath.Split(dest)
		if file == "" {
			return Target{}, fmt.Errorf("storage: %q names a directory", dest)
		}
		if dir == "" {
			dir = "."
		}
		return Target{Scheme: "file", Dir: dir, Key: file}, nil
	}
	u, err := url.Parse(dest)
	if err != nil {
		return Target{}, fmt.Errorf("storage: parse %q: %w", dest, err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
		return Target{}, fmt.Errorf("storage: %q must be s3://bucket/key", dest)
	}
	return Target{Scheme: "s3", Bucket: u.Host, Key: path.Clean(key)}, nil
}

// Open resolves dest to a Store and the key to write. S3 destinations use
// newS3 to build the client; pass nil to configure one from the environment.
func Open(ctx context.Context, dest string, newS3 func(context.Context) (S3Client, error)) (Store, string, error) {
	t, err := ParseTarget(dest)
	if err != nil {
		return nil, "", err
	}
	if t.Scheme == "file" {
		l, err := NewLocal(t.Dir)
		if err != nil {
			return nil, "", err
		}
		return l, t.Key, nil
	}
	if newS3 == nil {
		newS3 = func(context.Context) (S3Client, error) { return NewS3ClientFromEnv() }
	}
	client, err := newS3(ctx)
	if err != nil {
		return nil, "", err
	}
	return NewS3(client, t.Bucket, ""), t.Key, nil
}

// ContentType maps an LMNT output format to a MIME type.
func ContentType(format string) string {
	switch format {
	case "mp3":
		return "audio/mpeg"
	case "wav":
		return "audio/wav"
	case "aac":
		return "audio/aac"
	case "webm":
		return "audio/webm"
	case "ulaw":
		return "audio/basic"
	default:
		return "application/octet-stream"
	}
}
