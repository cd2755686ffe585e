package cache

import (
	"bytes"
	"context"
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lvkv/whenfs/internal/clock"
	"github.com/lvkv/whenfs/internal/storage"
)

func newTestCache() *Cache {
	return New(storage.NewFakeBackend(), clock.RealClock{}, DefaultBlockSize)
}

func TestCreateWriteReadBack(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	ino, _, err := c.Create(RootInodeID, "hello.txt", 0644, 0, 0)
	require.NoError(t, err)

	n, err := c.Write(ctx, ino, 0, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, 11, n)

	require.NoError(t, c.Flush(ctx, ino))

	got, err := c.Read(ctx, ino, 0, 11)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))

	attr, err := c.GetAttr(ino)
	require.NoError(t, err)
	require.Equal(t, uint64(11), attr.Size)
}

func TestRemountPersistence(t *testing.T) {
	ctx := context.Background()
	backend := storage.NewFakeBackend()
	c := New(backend, clock.RealClock{}, DefaultBlockSize)

	ino, _, err := c.Create(RootInodeID, "hello.txt", 0644, 0, 0)
	require.NoError(t, err)
	_, err = c.Write(ctx, ino, 0, []byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, ino))
	require.NoError(t, c.Flush(ctx, RootInodeID))

	root := c.RootRecordID()
	require.NotEmpty(t, root)

	c2, err := Mount(ctx, backend, root)
	require.NoError(t, err)

	reIno, _, err := c2.Lookup(RootInodeID, "hello.txt")
	require.NoError(t, err)

	got, err := c2.Read(ctx, reIno, 0, 11)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(got))
}

func TestDirectoryOperations(t *testing.T) {
	c := newTestCache()

	a, _, err := c.Mkdir(RootInodeID, "a", 0755, 0, 0)
	require.NoError(t, err)
	b, _, err := c.Mkdir(a, "b", 0755, 0, 0)
	require.NoError(t, err)
	_, _, err = c.Create(b, "c", 0644, 0, 0)
	require.NoError(t, err)

	entries, err := c.ReadDir(b, 0)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	require.Equal(t, []string{".", "..", "c"}, names)

	err = c.Rmdir(a, "b")
	require.ErrorIs(t, err, syscall.ENOTEMPTY)

	require.NoError(t, c.Unlink(b, "c"))
	require.NoError(t, c.Rmdir(a, "b"))
}

func TestMultiBlockFile(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()
	c.blockSize = 1024

	data := make([]byte, 3584)
	for i := range data {
		data[i] = byte(i % 251)
	}

	ino, _, err := c.Create(RootInodeID, "big", 0644, 0, 0)
	require.NoError(t, err)
	_, err = c.Write(ctx, ino, 0, data)
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, ino))

	var out bytes.Buffer
	for _, n := range []int{1000, 1000, 1584} {
		chunk, err := c.Read(ctx, ino, int64(out.Len()), n)
		require.NoError(t, err)
		out.Write(chunk)
	}
	require.Equal(t, data, out.Bytes())
}

func TestRenameOverwrite(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	x, _, err := c.Create(RootInodeID, "x", 0644, 0, 0)
	require.NoError(t, err)
	_, err = c.Write(ctx, x, 0, []byte("A"))
	require.NoError(t, err)

	y, _, err := c.Create(RootInodeID, "y", 0644, 0, 0)
	require.NoError(t, err)
	_, err = c.Write(ctx, y, 0, []byte("BB"))
	require.NoError(t, err)

	require.NoError(t, c.Rename(RootInodeID, "x", RootInodeID, "y"))

	yIno, _, err := c.Lookup(RootInodeID, "y")
	require.NoError(t, err)
	got, err := c.Read(ctx, yIno, 0, 1)
	require.NoError(t, err)
	require.Equal(t, "A", string(got))

	_, _, err = c.Lookup(RootInodeID, "x")
	require.ErrorIs(t, err, syscall.ENOENT)
}

func TestTransientFailureMasking(t *testing.T) {
	ctx := context.Background()
	fake := storage.NewFakeBackend()
	fake.FailPutsRemaining = 2
	backend := storage.WithRetry(fake, storage.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   0,
		MaxDelay:    0,
		Clock:       clock.RealClock{},
	})
	c := New(backend, clock.RealClock{}, DefaultBlockSize)

	ino, _, err := c.Create(RootInodeID, "f", 0644, 0, 0)
	require.NoError(t, err)
	_, err = c.Write(ctx, ino, 0, []byte("x"))
	require.NoError(t, err)

	require.NoError(t, c.Flush(ctx, ino))

	got, err := c.Read(ctx, ino, 0, 1)
	require.NoError(t, err)
	require.Equal(t, "x", string(got))
}

func TestZeroByteFileRoundTrips(t *testing.T) {
	ctx := context.Background()
	c := newTestCache()

	ino, _, err := c.Create(RootInodeID, "empty", 0644, 0, 0)
	require.NoError(t, err)
	require.NoError(t, c.Flush(ctx, ino))

	got, err := c.Read(ctx, ino, 0, 10)
	require.NoError(t, err)
	require.Empty(t, got)
}
