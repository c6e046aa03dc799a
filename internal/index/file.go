package index

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/rs/zerolog/log"
)

const (
	journalExt  = ".journal"
	snapshotExt = ".snapshot"
	gzipExt     = ".gz"
	tmpExt      = ".tmp"

	// compaction starts once the journal holds this many records more than there are live entries
	compactSlack = 1024
)

// File is a journal based index. Every mutation is appended as a framed record;
// Put/Delete/Clear flush and fsync the journal before returning. On open the journal
// is replayed over the last snapshot and compacted into a new snapshot.
type File struct {
	mu      sync.Mutex
	dir     string
	name    string
	gzip    bool
	f       *os.File
	bw      *bufio.Writer
	live    map[string]model.Entry
	records int // records appended to the current journal
	closed  bool
}

// OpenFile restores the index stored in dir and opens a fresh journal for appending.
func OpenFile(dir, name string, gz bool) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	idx := &File{dir: dir, name: name, gzip: gz, live: make(map[string]model.Entry)}
	if err := idx.restore(); err != nil {
		return nil, err
	}
	if err := idx.compactUnlocked(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *File) Load(context.Context) ([]model.Entry, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil, ErrClosed
	}
	out := make([]model.Entry, 0, len(idx.live))
	for _, e := range idx.live {
		out = append(out, e)
	}
	return out, nil
}

func (idx *File) Put(_ context.Context, e model.Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	idx.live[e.Key] = e
	return idx.appendUnlocked(&record{Op: opPut, Entry: e}, true)
}

func (idx *File) Touch(_ context.Context, e model.Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	live, ok := idx.live[e.Key]
	if !ok {
		return nil
	}
	if live, ok = touched(live, e); !ok {
		return nil
	}
	idx.live[e.Key] = live
	return idx.appendUnlocked(&record{Op: opTouch, Entry: live}, false)
}

func (idx *File) Delete(_ context.Context, key string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if _, ok := idx.live[key]; !ok {
		return nil
	}
	delete(idx.live, key)
	return idx.appendUnlocked(&record{Op: opDelete, Entry: model.Entry{Key: key}}, true)
}

// Clear drops every record. It also recreates the index dir, which may have been
// removed together with the cache dir.
func (idx *File) Clear(context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrClosed
	}
	if idx.f != nil {
		_ = idx.f.Close()
		idx.f, idx.bw = nil, nil
	}
	if err := os.MkdirAll(idx.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	clear(idx.live)
	for _, p := range []string{idx.snapshotPath(false), idx.snapshotPath(true)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove index snapshot: %w", err)
		}
	}
	return idx.openJournalUnlocked()
}

func (idx *File) Flush(context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed || idx.bw == nil {
		return nil
	}
	return idx.bw.Flush()
}

func (idx *File) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true
	if idx.f == nil {
		return nil
	}
	err := idx.bw.Flush()
	if syncErr := idx.f.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := idx.f.Close(); err == nil {
		err = closeErr
	}
	return err
}

func (idx *File) appendUnlocked(rec *record, barrier bool) error {
	if idx.bw == nil {
		if err := idx.openJournalUnlocked(); err != nil {
			return err
		}
	}
	if err := writeFrame(idx.bw, rec); err != nil {
		return fmt.Errorf("append index record: %w", err)
	}
	idx.records++

	if !barrier {
		return nil
	}
	if err := idx.bw.Flush(); err != nil {
		return fmt.Errorf("flush index journal: %w", err)
	}
	if err := idx.f.Sync(); err != nil {
		return fmt.Errorf("sync index journal: %w", err)
	}
	if idx.records > len(idx.live)*2+compactSlack {
		return idx.compactUnlocked()
	}
	return nil
}

func (idx *File) openJournalUnlocked() error {
	f, err := os.OpenFile(idx.journalPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open index journal: %w", err)
	}
	idx.f = f
	idx.bw = bufio.NewWriterSize(f, 64*1024)
	idx.records = 0
	return nil
}

// compactUnlocked writes live records into a new snapshot and truncates the journal.
// A crash between the rename and the truncation replays the old journal over the new
// snapshot, which converges to the same state.
func (idx *File) compactUnlocked() error {
	start := time.Now()
	if idx.f != nil {
		_ = idx.bw.Flush()
		_ = idx.f.Close()
		idx.f, idx.bw = nil, nil
	}

	name := idx.snapshotPath(idx.gzip)
	tmp := name + tmpExt
	if err := idx.writeSnapshot(tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, name); err != nil {
		return fmt.Errorf("rename index snapshot: %w", err)
	}
	// only one snapshot flavour may exist
	_ = os.Remove(idx.snapshotPath(!idx.gzip))

	if err := idx.openJournalUnlocked(); err != nil {
		return err
	}

	log.Debug().
		Int("entries", len(idx.live)).
		Str("elapsed", time.Since(start).String()).
		Msg("[index] compacted")
	return nil
}

func (idx *File) writeSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index snapshot: %w", err)
	}
	defer f.Close()

	var (
		writer io.Writer = f
		gw     *gzip.Writer
	)
	if idx.gzip {
		gw = gzip.NewWriter(f)
		writer = gw
	}
	bw := bufio.NewWriterSize(writer, 256*1024)

	for _, e := range idx.live {
		if err = writeFrame(bw, &record{Op: opPut, Entry: e}); err != nil {
			return fmt.Errorf("write index snapshot: %w", err)
		}
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush index snapshot: %w", err)
	}
	if gw != nil {
		if err = gw.Close(); err != nil {
			return fmt.Errorf("close gzip index snapshot: %w", err)
		}
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("sync index snapshot: %w", err)
	}
	return nil
}

func (idx *File) restore() error {
	start := time.Now()

	var restored, skipped int
	for _, gz := range []bool{false, true} {
		r, s, err := idx.replay(idx.snapshotPath(gz), gz)
		if err != nil {
			return err
		}
		restored, skipped = restored+r, skipped+s
	}
	r, s, err := idx.replay(idx.journalPath(), false)
	if err != nil {
		return err
	}
	restored, skipped = restored+r, skipped+s

	log.Info().
		Int("records", restored).
		Int("skipped", skipped).
		Int("entries", len(idx.live)).
		Str("elapsed", time.Since(start).String()).
		Msg("[index] restored")
	return nil
}

// replay applies records from path; a missing file is not an error.
func (idx *File) replay(path string, gz bool) (applied, skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var reader io.Reader = f
	if gz {
		gzr, gzErr := gzip.NewReader(f)
		if gzErr != nil {
			log.Error().Err(gzErr).Str("file", path).Msg("[index] gzip open error")
			return 0, 1, nil
		}
		defer gzr.Close()
		reader = gzr
	}

	br := bufio.NewReaderSize(reader, 256*1024)
	for {
		rec, readErr := readFrame(br)
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			return applied, skipped, nil
		case errors.Is(readErr, errBadChecksum):
			skipped++
			continue
		default:
			// torn tail of an interrupted append: everything before it is valid
			log.Warn().Err(readErr).Str("file", path).Msg("[index] truncated record")
			return applied, skipped + 1, nil
		}

		switch rec.Op {
		case opPut:
			idx.live[rec.Entry.Key] = rec.Entry
		case opTouch:
			if live, ok := idx.live[rec.Entry.Key]; ok {
				idx.live[rec.Entry.Key], _ = touched(live, rec.Entry)
			}
		case opDelete:
			delete(idx.live, rec.Entry.Key)
		default:
			skipped++
			continue
		}
		applied++
	}
}

func (idx *File) journalPath() string {
	return filepath.Join(idx.dir, idx.name+journalExt)
}

func (idx *File) snapshotPath(gz bool) string {
	p := filepath.Join(idx.dir, idx.name+snapshotExt)
	if gz {
		p += gzipExt
	}
	return p
}
