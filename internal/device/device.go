// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package device abstracts the physical storage a volume is built on,
// pre-bound with its size and alignment requirements the way the
// collaborator interfaces in the rest of this engine's ambient stack are
// bound with their identity before being handed to a caller.
package device

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// BlockSize is the minimum addressable and alignment unit for every read
// or write issued through a Device.
const BlockSize = 512

// Device represents a single physical volume member, pre-bound with its
// size and ready to serve aligned reads, writes, and durability barriers.
// Implementations must be safe for concurrent ReadAt/WriteAt from multiple
// goroutines; Sync/Close are serialized by the caller (the buffer
// manager's flush path, §4.3).
type Device interface {
	// Name returns the path or identifier this Device was opened from.
	Name() string

	// Size returns the device's total addressable byte size.
	Size() int64

	// ReadAt reads len(p) bytes starting at off. off and len(p) must both
	// be BlockSize-aligned.
	ReadAt(ctx context.Context, p []byte, off int64) error

	// WriteAt writes p starting at off. off and len(p) must both be
	// BlockSize-aligned.
	WriteAt(ctx context.Context, p []byte, off int64) error

	// Sync forces previously issued writes to stable storage. It is the
	// durability barrier between successive flush stages (DATA, UNDO,
	// volume header, META, per §6).
	Sync(ctx context.Context) error

	// Close releases the underlying file descriptor.
	Close() error
}

// fileDevice is a Device backed by a regular file or block special file
// opened from the host filesystem.
type fileDevice struct {
	name string
	f    *os.File
	size int64
}

// Open opens path as a Device. If path does not exist and size > 0, a new
// regular file of that size is created (used by mkfs); otherwise the
// device's existing size is used.
func Open(path string, size int64) (Device, error) {
	flag := os.O_RDWR
	_, err := os.Stat(path)
	created := false
	if os.IsNotExist(err) {
		flag |= os.O_CREATE
		created = true
	}

	f, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", path, err)
	}

	if created {
		if size <= 0 {
			f.Close()
			return nil, fmt.Errorf("device: %s does not exist and no size given", path)
		}
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("device: truncate %s to %d: %w", path, size, err)
		}
	} else {
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("device: stat %s: %w", path, err)
		}
		size = fi.Size()
	}

	if size%BlockSize != 0 {
		f.Close()
		return nil, fmt.Errorf("device: %s size %d is not a multiple of block size %d", path, size, BlockSize)
	}

	return &fileDevice{name: path, f: f, size: size}, nil
}

func (d *fileDevice) Name() string { return d.name }
func (d *fileDevice) Size() int64  { return d.size }

func checkAlignment(op string, off int64, n int) error {
	if off%BlockSize != 0 {
		return fmt.Errorf("device: %s offset %d is not block-aligned", op, off)
	}
	if n%BlockSize != 0 {
		return fmt.Errorf("device: %s length %d is not block-aligned", op, n)
	}
	return nil
}

func (d *fileDevice) ReadAt(ctx context.Context, p []byte, off int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkAlignment("read", off, len(p)); err != nil {
		return err
	}
	if off+int64(len(p)) > d.size {
		return fmt.Errorf("device: read [%d,%d) exceeds device size %d", off, off+int64(len(p)), d.size)
	}
	_, err := d.f.ReadAt(p, off)
	return err
}

func (d *fileDevice) WriteAt(ctx context.Context, p []byte, off int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkAlignment("write", off, len(p)); err != nil {
		return err
	}
	if off+int64(len(p)) > d.size {
		return fmt.Errorf("device: write [%d,%d) exceeds device size %d", off, off+int64(len(p)), d.size)
	}
	_, err := d.f.WriteAt(p, off)
	return err
}

func (d *fileDevice) Sync(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Fdatasync skips the inode metadata flush fsync would also force,
	// matching the flusher's expectation that Sync is a pure data barrier.
	if err := unix.Fdatasync(int(d.f.Fd())); err != nil {
		return fmt.Errorf("device: fdatasync %s: %w", d.name, err)
	}
	return nil
}

func (d *fileDevice) Close() error {
	return d.f.Close()
}
