// Package store implements the two-tier cache store. The persistent tier owns every entry
// and its backing file, the memory tier is a bounded promotion set over it.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-imgcache/config"
	"github.com/Borislavv/go-ash-imgcache/internal/index"
	"github.com/Borislavv/go-ash-imgcache/internal/shared/bytes"
	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/benbjohnson/clock"
)

var (
	ErrEmptyKey = errors.New("empty cache key")
	ErrTooLarge = errors.New("entry exceeds disk tier capacity")
)

type Storer interface {
	Lookup(key string) (model.Entry, bool)
	Peek(key string) (model.Entry, bool)
	Store(key string, data []byte, ttl time.Duration, hint model.TierHint) (model.Entry, error)
	Evict(key string)
	ClearAll() error
	Stats() model.Stats
}

// Store keeps LRU bookkeeping under mu and never touches the file system while holding it.
// Every change that needs I/O takes a ticket from seq under mu and performs the I/O
// after unlocking, in ticket order.
type Store struct {
	ctx      context.Context
	cfg      *config.Cache
	logger   *slog.Logger
	clock    clock.Clock
	idx      index.Index
	dir      string
	counters *counters

	mu   sync.Mutex
	mem  *tier
	disk *tier
	last uint64 // last assigned Entry.Seq

	io sequencer
}

// Open restores the persistent tier from idx, drops records without files, removes files
// without records, then reclaims expired entries and enforces the disk bound.
func Open(ctx context.Context, cfg *config.Cache, idx index.Index, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	if clk == nil {
		clk = clock.New()
	}
	if err := os.MkdirAll(cfg.Disk.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	s := &Store{
		ctx:      ctx,
		cfg:      cfg,
		logger:   logger,
		clock:    clk,
		idx:      idx,
		dir:      cfg.Disk.Dir,
		counters: newCounters(),
		mem:      newTier(),
		disk:     newTier(),
	}
	s.io.init()

	if err := s.restore(); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup checks the memory tier first, then the persistent tier, promoting persistent hits.
// Expired entries and entries whose file disappeared are evicted and reported absent.
func (s *Store) Lookup(key string) (model.Entry, bool) {
	e, ok := s.lookup(key, true)
	if ok {
		s.counters.hits.Add(1)
	} else {
		s.counters.misses.Add(1)
	}
	return e, ok
}

// Peek is Lookup without side effects: no promotion, no access update, no eviction.
func (s *Store) Peek(key string) (model.Entry, bool) {
	return s.lookup(key, false)
}

func (s *Store) lookup(key string, touch bool) (model.Entry, bool) {
	s.mu.Lock()
	// read under mu so list order follows LastAccessedAt
	now := s.clock.Now()
	e, ok := s.disk.get(key)
	if !ok {
		s.mu.Unlock()
		return model.Entry{}, false
	}
	if e.IsExpired(now) {
		if !touch {
			s.mu.Unlock()
			return model.Entry{}, false
		}
		s.removeLocked(e)
		s.counters.expirations.Add(1)
		s.dropUnlock([]model.Entry{*e})
		return model.Entry{}, false
	}
	if _, inMem := s.mem.get(key); inMem {
		if touch {
			s.touchLocked(e, now)
		}
		out := *e
		s.mu.Unlock()
		if touch {
			s.indexTouch(out)
		}
		return out, true
	}

	seq, path := e.Seq, e.LocalPath
	ticket := s.io.take()
	s.mu.Unlock()

	// the file must exist once every earlier write has landed
	s.io.wait(ticket)
	_, statErr := os.Stat(path)
	s.io.done()

	s.mu.Lock()
	if e, ok = s.disk.get(key); !ok || e.Seq != seq {
		s.mu.Unlock()
		return model.Entry{}, false
	}
	if statErr != nil {
		if !touch {
			s.mu.Unlock()
			return model.Entry{}, false
		}
		s.logger.Warn("cached file is unavailable, entry dropped", "key", key, "path", path, "err", statErr)
		s.removeLocked(e)
		s.dropUnlock([]model.Entry{*e})
		return model.Entry{}, false
	}
	if !touch {
		out := *e
		s.mu.Unlock()
		return out, true
	}
	s.touchLocked(e, s.clock.Now())
	s.promoteLocked(e)
	out := *e
	s.mu.Unlock()

	s.indexTouch(out)
	return out, true
}

// Store writes data under a path derived from key and registers the entry in the persistent
// tier, promoting it to memory when hint asks for it. A negative ttl means the default TTL.
func (s *Store) Store(key string, data []byte, ttl time.Duration, hint model.TierHint) (model.Entry, error) {
	if key == "" {
		return model.Entry{}, ErrEmptyKey
	}
	size := int64(len(data))
	if size > s.cfg.Disk.MaxBytes {
		return model.Entry{}, fmt.Errorf("%w: %s", ErrTooLarge, bytes.FmtMem(uint64(size)))
	}
	if ttl < 0 {
		ttl = s.cfg.DefaultTTL()
	}

	dst := pathFor(s.dir, key)
	tmp, err := writeTemp(dst, data)
	if err != nil {
		s.logger.Warn("store write failed", "key", key, "err", err)
		return model.Entry{}, err
	}

	s.mu.Lock()
	now := s.clock.Now()
	s.last++
	e := &model.Entry{
		Key:            key,
		LocalPath:      dst,
		SizeBytes:      size,
		CreatedAt:      now,
		LastAccessedAt: now,
		TTL:            ttl,
		Seq:            s.last,
	}
	if old, ok := s.disk.get(key); ok {
		e.HitCount = old.HitCount
		// same path, the file is replaced by the rename below
		s.removeLocked(old)
	}
	s.disk.pushFront(e)
	evicted := s.enforceDiskLocked(s.cfg.Disk.MaxBytes)
	if hint == model.TierMemory {
		s.promoteLocked(e)
	}
	out := *e
	ticket := s.io.take()
	s.mu.Unlock()

	s.io.wait(ticket)
	defer s.io.done()

	if err = os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		s.logger.Warn("store rename failed", "key", key, "err", err)

		s.mu.Lock()
		if cur, ok := s.disk.get(key); ok && cur.Seq == out.Seq {
			s.removeLocked(cur)
		}
		s.mu.Unlock()

		s.dropFiles(evicted)
		return model.Entry{}, fmt.Errorf("rename %s: %w", tmp, err)
	}

	if err = s.idx.Put(s.ctx, out); err != nil {
		// the entry still serves this process, after a restart its file becomes an orphan
		s.logger.Warn("index put failed", "key", key, "err", err)
	}
	s.dropFiles(evicted)

	return out, nil
}

// Evict removes key from both tiers together with its file and index record. Missing keys are ignored.
func (s *Store) Evict(key string) {
	s.mu.Lock()
	e, ok := s.disk.get(key)
	if !ok {
		s.mu.Unlock()
		return
	}
	s.removeLocked(e)
	s.dropUnlock([]model.Entry{*e})
}

// ClearAll empties both tiers, recreates the cache dir and clears the index. Repeated calls are no-ops.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	s.mem.reset()
	s.disk.reset()
	ticket := s.io.take()
	s.mu.Unlock()

	s.io.wait(ticket)
	defer s.io.done()

	var errs []error
	if err := os.RemoveAll(s.dir); err != nil {
		errs = append(errs, fmt.Errorf("remove cache dir: %w", err))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		errs = append(errs, fmt.Errorf("create cache dir: %w", err))
	}
	if err := s.idx.Clear(s.ctx); err != nil {
		errs = append(errs, fmt.Errorf("clear index: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("clear all failed", "dir", s.dir, "err", err)
		return err
	}
	return nil
}

func (s *Store) Stats() model.Stats {
	hits, misses, expirations, memEvictions, diskEvictions := s.counters.snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	return model.Stats{
		Memory:      model.TierStats{Bytes: s.mem.bytes, Entries: int64(s.mem.len()), Evictions: memEvictions},
		Disk:        model.TierStats{Bytes: s.disk.bytes, Entries: int64(s.disk.len()), Evictions: diskEvictions},
		Hits:        hits,
		Misses:      misses,
		Expirations: expirations,
	}
}

// SweepExpired evicts every expired entry and returns how many were removed.
func (s *Store) SweepExpired() int {
	now := s.clock.Now()

	s.mu.Lock()
	var expired []model.Entry
	for _, el := range s.disk.items {
		if e := el.Value.(*model.Entry); e.IsExpired(now) {
			expired = append(expired, *e)
		}
	}
	if len(expired) == 0 {
		s.mu.Unlock()
		return 0
	}
	for i := range expired {
		s.removeKeyLocked(expired[i].Key)
	}
	s.counters.expirations.Add(int64(len(expired)))
	s.dropUnlock(expired)

	return len(expired)
}

// EvictDiskUntil evicts least recently used entries until the persistent tier fits into limit.
func (s *Store) EvictDiskUntil(limit int64) (freedBytes, evicted int64) {
	s.mu.Lock()
	victims := s.enforceDiskLocked(limit)
	if len(victims) == 0 {
		s.mu.Unlock()
		return 0, 0
	}
	s.dropUnlock(victims)

	for i := range victims {
		freedBytes += victims[i].SizeBytes
	}
	return freedBytes, int64(len(victims))
}

// DiskBytes returns the current size of the persistent tier.
func (s *Store) DiskBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disk.bytes
}

func (s *Store) Dir() string { return s.dir }

// Flush pushes buffered access updates to the index.
func (s *Store) Flush() error { return s.idx.Flush(s.ctx) }

func (s *Store) Close() error { return s.idx.Close() }

/**
 * Private API.
 */

func (s *Store) touchLocked(e *model.Entry, now time.Time) {
	e.LastAccessedAt = now
	e.HitCount++
	s.mem.touch(e.Key)
	s.disk.touch(e.Key)
}

func (s *Store) promoteLocked(e *model.Entry) {
	if e.SizeBytes > s.cfg.Memory.MaxBytes {
		return
	}
	s.mem.pushFront(e)
	for s.mem.bytes > s.cfg.Memory.MaxBytes || s.mem.len() > s.cfg.Memory.MaxEntries {
		victim, ok := s.mem.victim()
		if !ok {
			return
		}
		// the persistent copy stays
		s.mem.remove(victim.Key)
		s.counters.memEvictions.Add(1)
	}
}

func (s *Store) enforceDiskLocked(limit int64) []model.Entry {
	var victims []model.Entry
	for s.disk.bytes > limit {
		victim, ok := s.disk.victim()
		if !ok {
			break
		}
		s.removeLocked(victim)
		victims = append(victims, *victim)
	}
	s.counters.diskEvictions.Add(int64(len(victims)))
	return victims
}

func (s *Store) removeLocked(e *model.Entry) { s.removeKeyLocked(e.Key) }

func (s *Store) removeKeyLocked(key string) {
	s.mem.remove(key)
	s.disk.remove(key)
}

// dropUnlock releases mu and removes files and index records of entries already
// removed from the tiers.
func (s *Store) dropUnlock(entries []model.Entry) {
	ticket := s.io.take()
	s.mu.Unlock()

	s.io.wait(ticket)
	defer s.io.done()
	s.dropFiles(entries)
}

func (s *Store) dropFiles(entries []model.Entry) {
	for i := range entries {
		e := &entries[i]
		if err := os.Remove(e.LocalPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove cached file failed", "key", e.Key, "path", e.LocalPath, "err", err)
		}
		if err := s.idx.Delete(s.ctx, e.Key); err != nil {
			s.logger.Warn("index delete failed", "key", e.Key, "err", err)
		}
	}
}

func (s *Store) indexTouch(e model.Entry) {
	if err := s.idx.Touch(s.ctx, e); err != nil {
		s.logger.Debug("index touch failed", "key", e.Key, "err", err)
	}
}

func (s *Store) restore() error {
	start := time.Now()

	records, err := s.idx.Load(s.ctx)
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	live := make([]*model.Entry, 0, len(records))
	var dropped int
	for i := range records {
		e := records[i]
		if e.Key == "" {
			dropped++
			continue
		}

		p := pathFor(s.dir, e.Key)
		info, statErr := os.Stat(p)
		if statErr != nil || !info.Mode().IsRegular() {
			dropped++
			if delErr := s.idx.Delete(s.ctx, e.Key); delErr != nil {
				s.logger.Warn("index delete failed", "key", e.Key, "err", delErr)
			}
			continue
		}

		// metadata is validated against the file, not trusted
		if e.LocalPath != p || e.SizeBytes != info.Size() {
			e.LocalPath, e.SizeBytes = p, info.Size()
			if putErr := s.idx.Put(s.ctx, e); putErr != nil {
				s.logger.Warn("index put failed", "key", e.Key, "err", putErr)
			}
		}
		s.last = max(s.last, e.Seq)
		live = append(live, &e)
	}

	slices.SortFunc(live, func(a, b *model.Entry) int {
		switch {
		case a.OlderThan(b):
			return -1
		case b.OlderThan(a):
			return 1
		}
		return 0
	})
	s.mu.Lock()
	for _, e := range live {
		s.disk.pushFront(e)
	}
	s.mu.Unlock()

	orphans := s.removeOrphans()
	expired := s.SweepExpired()
	_, evicted := s.EvictDiskUntil(s.cfg.Disk.MaxBytes)

	s.mu.Lock()
	entries, size := s.disk.len(), s.disk.bytes
	s.mu.Unlock()

	s.logger.Info("store is opened",
		"dir", s.dir,
		"entries", entries,
		"size", bytes.FmtMem(uint64(size)),
		"dropped", dropped,
		"orphans", orphans,
		"expired", expired,
		"evicted", evicted,
		"elapsed", time.Since(start).String(),
	)
	return nil
}

// removeOrphans deletes files of the cache dir that no entry refers to, including
// temp files left by an interrupted write. Hidden entries belong to the index.
func (s *Store) removeOrphans() (removed int) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Warn("read cache dir failed", "dir", s.dir, "err", err)
		return 0
	}

	s.mu.Lock()
	known := make(map[string]struct{}, s.disk.len())
	for _, el := range s.disk.items {
		known[el.Value.(*model.Entry).LocalPath] = struct{}{}
	}
	s.mu.Unlock()

	for _, f := range files {
		name := f.Name()
		if f.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		p := filepath.Join(s.dir, name)
		if _, ok := known[p]; ok && !strings.HasSuffix(name, tmpExt) {
			continue
		}
		if err = os.Remove(p); err != nil {
			s.logger.Warn("remove orphan file failed", "path", p, "err", err)
			continue
		}
		removed++
	}
	return removed
}
