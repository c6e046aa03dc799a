// Package index keeps the durable key -> entry metadata map of the persistent tier.
// Membership changes (Put, Delete, Clear) are durable when the call returns;
// access-time updates (Touch) are buffered and only reach storage on Flush or with
// the next membership change, so a crash may lose some LRU ordering but never entries.
package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/model"
)

// DirName is the sub-directory of the cache dir used by the file index.
const DirName = ".index"

var ErrClosed = errors.New("index is closed")

type Index interface {
	// Load returns every live record.
	Load(ctx context.Context) ([]model.Entry, error)
	// Put inserts or replaces a record durably.
	Put(ctx context.Context, e model.Entry) error
	// Touch records access metadata of an existing record without a durability barrier.
	// Only LastAccessedAt and HitCount are taken from e, and only when e.Seq matches the
	// live record, so a late touch never replaces a newer Put of the same key.
	Touch(ctx context.Context, e model.Entry) error
	// Delete removes a record durably. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes every record durably.
	Clear(ctx context.Context) error
	// Flush pushes buffered touches to storage.
	Flush(ctx context.Context) error
	Close() error
}

// New builds the backend selected by cfg.Index.Mode.
func New(ctx context.Context, cfg *config.Cache) (Index, error) {
	switch cfg.Index.Mode {
	case config.IndexModeMemory:
		return NewMemory(), nil
	case config.IndexModeRedis:
		if cfg.Index.Redis == nil || cfg.Index.Redis.Addr == "" {
			return nil, fmt.Errorf("index mode %q requires redis.addr", cfg.Index.Mode)
		}
		return DialRedis(ctx, cfg.Index.Redis)
	case config.IndexModeFile, "":
		return OpenFile(filepath.Join(cfg.Disk.Dir, DirName), cfg.Index.Name, cfg.Index.Gzip)
	default:
		return nil, fmt.Errorf("unknown index mode %q", cfg.Index.Mode)
	}
}

// touched applies the access metadata of t to live. It reports false when t
// belongs to another generation of the key.
func touched(live, t model.Entry) (model.Entry, bool) {
	if live.Seq != t.Seq {
		return live, false
	}
	live.LastAccessedAt = t.LastAccessedAt
	live.HitCount = t.HitCount
	return live, true
}
