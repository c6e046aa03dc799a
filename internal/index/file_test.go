package index

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/stretchr/testify/require"
)

func entry(key string, seq uint64) model.Entry {
	now := time.Unix(1_700_000_000, 0)
	return model.Entry{
		Key:            key,
		LocalPath:      "/tmp/" + key,
		SizeBytes:      int64(len(key)),
		CreatedAt:      now,
		LastAccessedAt: now,
		Seq:            seq,
	}
}

func keys(entries []model.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Key)
	}
	sort.Strings(out)
	return out
}

// TestFile_PutDelete_SurvivesReopen restores membership changes after reopen.
func TestFile_PutDelete_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, entry("a", 1)))
	require.NoError(t, idx.Put(ctx, entry("b", 2)))
	require.NoError(t, idx.Put(ctx, entry("c", 3)))
	require.NoError(t, idx.Delete(ctx, "b"))
	require.NoError(t, idx.Close())

	reopened, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "c"}, keys(loaded))
}

// TestFile_Touch_PersistedOnClose keeps the latest access metadata after a clean close.
func TestFile_Touch_PersistedOnClose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenFile(dir, "index", true)
	require.NoError(t, err)
	e := entry("a", 1)
	require.NoError(t, idx.Put(ctx, e))

	e.HitCount = 7
	e.LastAccessedAt = e.LastAccessedAt.Add(time.Minute)
	require.NoError(t, idx.Touch(ctx, e))
	require.NoError(t, idx.Close())

	reopened, err := OpenFile(dir, "index", true)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, uint64(7), loaded[0].HitCount)
	require.True(t, e.LastAccessedAt.Equal(loaded[0].LastAccessedAt))
}

// TestFile_Touch_IgnoresUnknownKey does not resurrect deleted records.
func TestFile_Touch_IgnoresUnknownKey(t *testing.T) {
	ctx := context.Background()
	idx, err := OpenFile(t.TempDir(), "index", false)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Touch(ctx, entry("ghost", 1)))
	loaded, err := idx.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded)
}

// TestFile_TornTail_KeepsPrefix tolerates a journal cut in the middle of a frame.
func TestFile_TornTail_KeepsPrefix(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, entry("a", 1)))
	require.NoError(t, idx.Put(ctx, entry("b", 2)))
	require.NoError(t, idx.Close())

	journal := filepath.Join(dir, "index"+journalExt)
	info, err := os.Stat(journal)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(journal, info.Size()-3))

	reopened, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys(loaded))
}

// TestFile_CorruptedFrame_Skipped skips a frame whose checksum does not match.
func TestFile_CorruptedFrame_Skipped(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, entry("a", 1)))
	require.NoError(t, idx.Put(ctx, entry("b", 2)))
	require.NoError(t, idx.Close())

	journal := filepath.Join(dir, "index"+journalExt)
	data, err := os.ReadFile(journal)
	require.NoError(t, err)
	// flip one payload byte of the first frame
	data[10] ^= 0xff
	require.NoError(t, os.WriteFile(journal, data, 0o644))

	reopened, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys(loaded))
}

// TestFile_Clear_RecreatesRemovedDir works after the directory was removed underneath.
func TestFile_Clear_RecreatesRemovedDir(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := filepath.Join(root, DirName)

	idx, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, entry("a", 1)))

	require.NoError(t, os.RemoveAll(root))
	require.NoError(t, idx.Clear(ctx))
	require.NoError(t, idx.Put(ctx, entry("b", 2)))
	require.NoError(t, idx.Close())

	reopened, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, keys(loaded))
}

// TestFile_Compaction_KeepsLiveRecords compacts a journal with many dead records.
func TestFile_Compaction_KeepsLiveRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenFile(dir, "index", true)
	require.NoError(t, err)
	for i := 0; i < compactSlack+10; i++ {
		require.NoError(t, idx.Put(ctx, entry("tmp", uint64(i))))
		require.NoError(t, idx.Delete(ctx, "tmp"))
	}
	require.NoError(t, idx.Put(ctx, entry("kept", 1)))
	require.NoError(t, idx.Close())

	reopened, err := OpenFile(dir, "index", true)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"kept"}, keys(loaded))
}

// TestFile_Closed_ReturnsErr rejects writes after Close.
func TestFile_Closed_ReturnsErr(t *testing.T) {
	idx, err := OpenFile(t.TempDir(), "index", false)
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())

	require.ErrorIs(t, idx.Put(context.Background(), entry("a", 1)), ErrClosed)
}

// TestFile_Touch_IgnoresStaleGeneration keeps a newer Put across reopen when an older touch arrives late.
func TestFile_Touch_IgnoresStaleGeneration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	require.NoError(t, idx.Put(ctx, entry("a", 1)))
	fresh := entry("a", 2)
	fresh.CreatedAt = fresh.CreatedAt.Add(time.Hour)
	require.NoError(t, idx.Put(ctx, fresh))

	stale := entry("a", 1)
	stale.HitCount = 5
	require.NoError(t, idx.Touch(ctx, stale))

	touch := fresh
	touch.HitCount = 2
	touch.LastAccessedAt = fresh.CreatedAt.Add(time.Minute)
	touch.CreatedAt = time.Time{}
	require.NoError(t, idx.Touch(ctx, touch))
	require.NoError(t, idx.Close())

	reopened, err := OpenFile(dir, "index", false)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, uint64(2), loaded[0].Seq)
	require.Equal(t, uint64(2), loaded[0].HitCount)
	require.True(t, fresh.CreatedAt.Equal(loaded[0].CreatedAt), "touch carries access metadata only")
	require.True(t, touch.LastAccessedAt.Equal(loaded[0].LastAccessedAt))
}

// TestMemory_Touch_IgnoresStaleGeneration applies touches only to the same generation.
func TestMemory_Touch_IgnoresStaleGeneration(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory()

	require.NoError(t, idx.Put(ctx, entry("a", 2)))
	stale := entry("a", 1)
	stale.HitCount = 5
	require.NoError(t, idx.Touch(ctx, stale))

	loaded, err := idx.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	require.Equal(t, uint64(2), loaded[0].Seq)
	require.Zero(t, loaded[0].HitCount)
}
