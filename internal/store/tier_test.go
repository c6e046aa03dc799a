package store

import (
	"testing"
	"time"

	"github.com/Borislavv/go-ash-imgcache/model"
	"github.com/stretchr/testify/require"
)

// TestTier_Victim_TieBreak picks the earliest created, then the lowest sequence, among equal access times.
func TestTier_Victim_TieBreak(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	accessed := base.Add(time.Hour)

	tr := newTier()
	// pushed oldest first, so "late" ends up at the back
	tr.pushFront(&model.Entry{Key: "late", SizeBytes: 1, CreatedAt: base.Add(2 * time.Second), LastAccessedAt: accessed, Seq: 1})
	tr.pushFront(&model.Entry{Key: "early-high-seq", SizeBytes: 1, CreatedAt: base, LastAccessedAt: accessed, Seq: 5})
	tr.pushFront(&model.Entry{Key: "early-low-seq", SizeBytes: 1, CreatedAt: base, LastAccessedAt: accessed, Seq: 3})
	tr.pushFront(&model.Entry{Key: "recent", SizeBytes: 1, CreatedAt: base, LastAccessedAt: accessed.Add(time.Second), Seq: 0})

	v, ok := tr.victim()
	require.True(t, ok)
	require.Equal(t, "early-low-seq", v.Key)

	tr.remove(v.Key)
	v, _ = tr.victim()
	require.Equal(t, "early-high-seq", v.Key)

	tr.remove(v.Key)
	v, _ = tr.victim()
	require.Equal(t, "late", v.Key)

	tr.remove(v.Key)
	v, _ = tr.victim()
	require.Equal(t, "recent", v.Key)
	require.Equal(t, int64(1), tr.bytes)
}

// TestTier_PushFront_Replace keeps byte accounting exact when an entry is replaced.
func TestTier_PushFront_Replace(t *testing.T) {
	tr := newTier()
	tr.pushFront(&model.Entry{Key: "a", SizeBytes: 10})
	tr.pushFront(&model.Entry{Key: "b", SizeBytes: 5})
	tr.pushFront(&model.Entry{Key: "a", SizeBytes: 3})

	require.Equal(t, 2, tr.len())
	require.Equal(t, int64(8), tr.bytes)

	v, _ := tr.victim()
	require.Equal(t, "b", v.Key)

	tr.reset()
	require.Zero(t, tr.len())
	require.Zero(t, tr.bytes)
	_, ok := tr.victim()
	require.False(t, ok)
}

// TestExtOf keeps short alphanumeric extensions of the key path only.
func TestExtOf(t *testing.T) {
	require.Equal(t, ".jpg", extOf("https://cdn.example.com/a/b.JPG?x=1.png"))
	require.Equal(t, ".webp", extOf("/local/file.webp"))
	require.Equal(t, "", extOf("https://cdn.example.com/a/b"))
	require.Equal(t, "", extOf("https://cdn.example.com/a/b.toolongext"))
	require.Equal(t, "", extOf("https://cdn.example.com/a/b.p-g"))
	require.Equal(t, pathFor("/d", "k"), pathFor("/d", "k"))
	require.NotEqual(t, pathFor("/d", "k1"), pathFor("/d", "k2"))
}
