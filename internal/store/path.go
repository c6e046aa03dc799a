package store

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/xxh3"
)

const (
	tmpExt    = ".tmp"
	maxExtLen = 8
)

// pathFor maps a key to <dir>/<xxh3-128 hex><ext>.
func pathFor(dir, key string) string {
	sum := xxh3.HashString128(key).Bytes()
	return filepath.Join(dir, hex.EncodeToString(sum[:])+extOf(key))
}

// extOf returns the lower-cased extension of the key path, or "" when it is absent or suspicious.
func extOf(key string) string {
	p := key
	if u, err := url.Parse(key); err == nil && u.Path != "" {
		p = u.Path
	}
	ext := path.Ext(p)
	if len(ext) < 2 || len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return strings.ToLower(ext)
}

// writeTemp writes data next to dst and returns the temp file name; the caller renames it.
func writeTemp(dst string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*"+tmpExt)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()

	if _, err = f.Write(data); err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("write %s: %w", tmp, err)
	}
	return tmp, nil
}
