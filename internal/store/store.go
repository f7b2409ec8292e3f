package store

import (
	"context"
	"fmt"
	"path"
	"strings"
)

// ArtifactStore is durable object storage for raw positional files and their
// converted columnar artifacts.
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

const (
	rawNamespace     = "raw"
	curatedNamespace = "curated"
	curatedSuffix    = ".avro"
)

// RawKey builds the raw namespace key for a member file of a batch,
// e.g. raw/2024-03-01/accounts.
func RawKey(batchDate, memberKey string) string {
	return path.Join(rawNamespace, batchDate, memberKey)
}

// CuratedKey mirrors a raw key into the curated namespace, preserving the
// relative path and appending the columnar suffix,
// e.g. raw/2024-03-01/accounts -> curated/2024-03-01/accounts.avro.
func CuratedKey(rawKey string) (string, error) {
	rel, ok := strings.CutPrefix(rawKey, rawNamespace+"/")
	if !ok || rel == "" {
		return "", fmt.Errorf("key %q is not under the %s namespace", rawKey, rawNamespace)
	}
	return path.Join(curatedNamespace, rel) + curatedSuffix, nil
}

// RawPrefix lists-by-prefix scope for one batch day.
func RawPrefix(batchDate string) string {
	return path.Join(rawNamespace, batchDate) + "/"
}
