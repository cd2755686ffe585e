package fsadapter

import (
	"context"
	"syscall"

	"github.com/jacobsa/fuse/fuseops"
)

// Extended attributes have no representation in the calendar record
// model, so every xattr upcall reports the filesystem as not
// supporting them.
func (fs *FileSystem) RemoveXattr(_ context.Context, op *fuseops.RemoveXattrOp) error {
	return syscall.ENOSYS
}

func (fs *FileSystem) GetXattr(_ context.Context, op *fuseops.GetXattrOp) error {
	return syscall.ENOSYS
}

func (fs *FileSystem) ListXattr(_ context.Context, op *fuseops.ListXattrOp) error {
	return syscall.ENOSYS
}

func (fs *FileSystem) SetXattr(_ context.Context, op *fuseops.SetXattrOp) error {
	return syscall.ENOSYS
}

// Fallocate is unsupported: block allocation happens implicitly on
// write, and preallocating a sparse range buys nothing against a
// calendar-backed store.
func (fs *FileSystem) Fallocate(_ context.Context, op *fuseops.FallocateOp) error {
	return syscall.ENOSYS
}
