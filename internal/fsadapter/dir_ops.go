package fsadapter

import (
	"context"
	"time"

	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/lvkv/whenfs/common"
	"github.com/lvkv/whenfs/internal/cache"
	"github.com/lvkv/whenfs/internal/metrics"
)

func direntType(k cache.Kind) fuseutil.DirentType {
	if k == cache.KindDir {
		return fuseutil.DT_Directory
	}
	return fuseutil.DT_File
}

func (fs *FileSystem) OpenDir(_ context.Context, op *fuseops.OpenDirOp) (err error) {
	defer metrics.ObserveOp(common.OpOpenDir, time.Now())(&err)
	if _, err = fs.cache.GetAttr(cache.InodeID(op.Inode)); err != nil {
		return err
	}
	op.Handle = fs.allocHandle()
	fs.mu.Lock()
	fs.dirHandle[op.Handle] = cache.InodeID(op.Inode)
	fs.mu.Unlock()
	return nil
}

// ReadDir serializes entries starting at op.Offset, which the cache
// treats as a plain index into the synthesized "."/".."/children
// sequence, so the kernel's resumable-offset convention falls directly
// out of slice position.
func (fs *FileSystem) ReadDir(_ context.Context, op *fuseops.ReadDirOp) (err error) {
	defer metrics.ObserveOp(common.OpReadDir, time.Now())(&err)
	entries, err := fs.cache.ReadDir(cache.InodeID(op.Inode), int(op.Offset))
	if err != nil {
		return err
	}

	op.BytesRead = 0
	for i, e := range entries {
		d := fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(e.Ino),
			Name:   e.Name,
			Type:   direntType(e.Kind),
		}
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], d)
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (fs *FileSystem) ReleaseDirHandle(_ context.Context, op *fuseops.ReleaseDirHandleOp) error {
	fs.mu.Lock()
	delete(fs.dirHandle, op.Handle)
	fs.mu.Unlock()
	return nil
}
