package fsadapter

import (
	"context"
	"time"

	"github.com/jacobsa/fuse/fuseops"

	"github.com/lvkv/whenfs/common"
	"github.com/lvkv/whenfs/internal/cache"
	"github.com/lvkv/whenfs/internal/metrics"
)

func (fs *FileSystem) OpenFile(_ context.Context, op *fuseops.OpenFileOp) (err error) {
	defer metrics.ObserveOp(common.OpOpenFile, time.Now())(&err)
	ino := cache.InodeID(op.Inode)
	if err = fs.cache.Open(ino); err != nil {
		return err
	}
	op.Handle = fs.allocHandle()
	fs.mu.Lock()
	fs.fileHandle[op.Handle] = ino
	fs.mu.Unlock()
	return nil
}

func (fs *FileSystem) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) (err error) {
	defer metrics.ObserveOp(common.OpReadFile, time.Now())(&err)
	data, err := fs.cache.Read(ctx, cache.InodeID(op.Inode), op.Offset, len(op.Dst))
	if err != nil {
		return err
	}
	op.BytesRead = copy(op.Dst, data)
	return nil
}

func (fs *FileSystem) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) (err error) {
	defer metrics.ObserveOp(common.OpWriteFile, time.Now())(&err)
	_, err = fs.cache.Write(ctx, cache.InodeID(op.Inode), op.Offset, op.Data)
	return err
}

func (fs *FileSystem) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) (err error) {
	defer metrics.ObserveOp(common.OpSyncFile, time.Now())(&err)
	return fs.cache.Flush(ctx, cache.InodeID(op.Inode))
}

func (fs *FileSystem) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) (err error) {
	defer metrics.ObserveOp(common.OpFlushFile, time.Now())(&err)
	return fs.cache.Flush(ctx, cache.InodeID(op.Inode))
}

func (fs *FileSystem) ReleaseFileHandle(_ context.Context, op *fuseops.ReleaseFileHandleOp) error {
	fs.mu.Lock()
	ino, ok := fs.fileHandle[op.Handle]
	delete(fs.fileHandle, op.Handle)
	fs.mu.Unlock()
	if ok {
		fs.cache.Release(ino)
	}
	return nil
}
