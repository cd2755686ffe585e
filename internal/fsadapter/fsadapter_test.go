package fsadapter

import (
	"context"
	"os"
	"syscall"
	"testing"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/stretchr/testify/require"

	"github.com/lvkv/whenfs/internal/cache"
	"github.com/lvkv/whenfs/internal/clock"
	"github.com/lvkv/whenfs/internal/storage"
)

func newTestFS() *FileSystem {
	return New(cache.New(storage.NewFakeBackend(), clock.RealClock{}, cache.DefaultBlockSize))
}

func TestCreateWriteReadFile(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()

	createOp := &fuseops.CreateFileOp{
		Parent: fuseops.InodeID(cache.RootInodeID),
		Name:   "hello.txt",
		Mode:   0644,
	}
	require.NoError(t, fs.CreateFile(ctx, createOp))
	require.NotZero(t, createOp.Handle)

	writeOp := &fuseops.WriteFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Offset: 0,
		Data:   []byte("hello world"),
	}
	require.NoError(t, fs.WriteFile(ctx, writeOp))

	readOp := &fuseops.ReadFileOp{
		Inode:  createOp.Entry.Child,
		Handle: createOp.Handle,
		Offset: 0,
		Dst:    make([]byte, 32),
	}
	require.NoError(t, fs.ReadFile(ctx, readOp))
	require.Equal(t, "hello world", string(readOp.Dst[:readOp.BytesRead]))

	releaseOp := &fuseops.ReleaseFileHandleOp{Handle: createOp.Handle}
	require.NoError(t, fs.ReleaseFileHandle(ctx, releaseOp))
}

func TestLookUpAndGetAttr(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()

	createOp := &fuseops.CreateFileOp{
		Parent: fuseops.InodeID(cache.RootInodeID),
		Name:   "a",
		Mode:   0644,
	}
	require.NoError(t, fs.CreateFile(ctx, createOp))

	lookupOp := &fuseops.LookUpInodeOp{
		Parent: fuseops.InodeID(cache.RootInodeID),
		Name:   "a",
	}
	require.NoError(t, fs.LookUpInode(ctx, lookupOp))
	require.Equal(t, createOp.Entry.Child, lookupOp.Entry.Child)

	attrOp := &fuseops.GetInodeAttributesOp{Inode: lookupOp.Entry.Child}
	require.NoError(t, fs.GetInodeAttributes(ctx, attrOp))
	require.Equal(t, os.FileMode(0644), attrOp.Attributes.Mode)
}

func TestMkDirAndReadDir(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()

	mkdirOp := &fuseops.MkDirOp{
		Parent: fuseops.InodeID(cache.RootInodeID),
		Name:   "sub",
		Mode:   0755,
	}
	require.NoError(t, fs.MkDir(ctx, mkdirOp))

	createOp := &fuseops.CreateFileOp{
		Parent: mkdirOp.Entry.Child,
		Name:   "file",
		Mode:   0644,
	}
	require.NoError(t, fs.CreateFile(ctx, createOp))

	openOp := &fuseops.OpenDirOp{Inode: mkdirOp.Entry.Child}
	require.NoError(t, fs.OpenDir(ctx, openOp))

	readOp := &fuseops.ReadDirOp{
		Inode:  mkdirOp.Entry.Child,
		Handle: openOp.Handle,
		Offset: 0,
		Dst:    make([]byte, 4096),
	}
	require.NoError(t, fs.ReadDir(ctx, readOp))
	require.Greater(t, readOp.BytesRead, 0)

	require.NoError(t, fs.ReleaseDirHandle(ctx, &fuseops.ReleaseDirHandleOp{Handle: openOp.Handle}))
}

func TestUnlinkAndRmdir(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()

	mkdirOp := &fuseops.MkDirOp{Parent: fuseops.InodeID(cache.RootInodeID), Name: "d", Mode: 0755}
	require.NoError(t, fs.MkDir(ctx, mkdirOp))

	createOp := &fuseops.CreateFileOp{Parent: mkdirOp.Entry.Child, Name: "f", Mode: 0644}
	require.NoError(t, fs.CreateFile(ctx, createOp))

	err := fs.RmDir(ctx, &fuseops.RmDirOp{Parent: fuseops.InodeID(cache.RootInodeID), Name: "d"})
	require.Error(t, err)

	require.NoError(t, fs.Unlink(ctx, &fuseops.UnlinkOp{Parent: mkdirOp.Entry.Child, Name: "f"}))
	require.NoError(t, fs.RmDir(ctx, &fuseops.RmDirOp{Parent: fuseops.InodeID(cache.RootInodeID), Name: "d"}))
}

func TestXattrAndFallocateReturnENOSYS(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS()

	require.ErrorIs(t, fs.GetXattr(ctx, &fuseops.GetXattrOp{Inode: fuseops.InodeID(cache.RootInodeID)}), syscall.ENOSYS)
	require.ErrorIs(t, fs.SetXattr(ctx, &fuseops.SetXattrOp{Inode: fuseops.InodeID(cache.RootInodeID)}), syscall.ENOSYS)
	require.ErrorIs(t, fs.ListXattr(ctx, &fuseops.ListXattrOp{Inode: fuseops.InodeID(cache.RootInodeID)}), syscall.ENOSYS)
	require.ErrorIs(t, fs.RemoveXattr(ctx, &fuseops.RemoveXattrOp{Inode: fuseops.InodeID(cache.RootInodeID)}), syscall.ENOSYS)
	require.ErrorIs(t, fs.Fallocate(ctx, &fuseops.FallocateOp{Inode: fuseops.InodeID(cache.RootInodeID)}), syscall.ENOSYS)
}
