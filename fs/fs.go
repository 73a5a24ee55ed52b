// Package fs defines the abstractions shared by all storage backends.
package fs

import (
	"context"
	"errors"
	"io"
	"time"
)

// Constants for data sizes
const (
	SizeSuffixBase SizeSuffix = 1 << (iota * 10)
	Kibi
	Mebi
	Gibi
)

// Info provides read only information about a backend.
type Info interface {
	// Name of the remote (as passed into NewFs)
	Name() string

	// Root of the remote (as passed into NewFs)
	Root() string

	// String returns a description of the backend
	String() string
}

// Fs is the interface a backup storage backend must satisfy.
type Fs interface {
	Info

	// List the objects and directories in dir into entries
	//
	// dir should be "" to list the root, and should not have
	// trailing slashes.
	//
	// This should return ErrorDirNotFound if the directory isn't found.
	List(ctx context.Context, dir string) (entries DirEntries, err error)

	// NewObject finds the Object at remote.  If it can't be found
	// it returns the error ErrorObjectNotFound.
	NewObject(ctx context.Context, remote string) (Object, error)

	// Put the object into the remote
	//
	// Copy the reader in to the new object which is returned.
	//
	// The new object may have been created if an error is returned.
	Put(ctx context.Context, in io.Reader, src ObjectInfo, options ...OpenOption) (Object, error)

	// Mkdir makes the directory (container, bucket)
	//
	// Shouldn't return an error if it already exists
	Mkdir(ctx context.Context, dir string) error
}

// ObjectInfo provides read only information about an object.
type ObjectInfo interface {
	// Remote returns the remote path
	Remote() string

	// Size returns the size of the file, or -1 if unknown
	Size() int64

	// ModTime returns the modification date of the file
	ModTime(ctx context.Context) time.Time
}

// Object is a remote file.
type Object interface {
	ObjectInfo

	// Open opens the file for read.  Call Close() on the returned io.ReadCloser
	Open(ctx context.Context, options ...OpenOption) (io.ReadCloser, error)

	// Update in to the object with the modTime given of the given size
	//
	// The new object may have been created if an error is returned.
	Update(ctx context.Context, in io.Reader, src ObjectInfo, options ...OpenOption) error

	// Remove this object
	Remove(ctx context.Context) error
}

// Renamer is an optional interface for Object
type Renamer interface {
	// Rename gives the object a new leaf name within its directory
	Rename(ctx context.Context, newName string) error
}

// Abouter is an optional interface for Fs
type Abouter interface {
	// About gets quota information from the Fs
	About(ctx context.Context) (*Usage, error)
}

// Tester is an optional interface for Fs
type Tester interface {
	// Test checks the backend is usable for both reading and writing
	Test(ctx context.Context) error
}

// DirEntry provides read only information about the common subset of
// a Dir or Object.
type DirEntry interface {
	Remote() string
	Size() int64
	ModTime(ctx context.Context) time.Time
}

// DirEntries is a slice of Object or *Dir
type DirEntries []DirEntry

// Dir describes an unspecialized directory for directory/container/bucket lists
type Dir struct {
	remote  string
	modTime time.Time
	id      string
	items   int64
}

// NewDir creates an unspecialized Dir object
func NewDir(remote string, modTime time.Time) *Dir {
	return &Dir{
		remote:  remote,
		modTime: modTime,
		items:   -1,
	}
}

// Remote returns the remote path
func (d *Dir) Remote() string { return d.remote }

// Size returns the size of the directory, always 0
func (d *Dir) Size() int64 { return 0 }

// ModTime returns the modification date of the directory
func (d *Dir) ModTime(ctx context.Context) time.Time { return d.modTime }

// SetID sets the directory ID
func (d *Dir) SetID(id string) *Dir {
	d.id = id
	return d
}

// ID returns the directory ID if known
func (d *Dir) ID() string { return d.id }

// SetItems sets the number of items in the directory
func (d *Dir) SetItems(items int64) *Dir {
	d.items = items
	return d
}

// Items returns the count of items in the directory, -1 for unknown
func (d *Dir) Items() int64 { return d.items }

// Usage is returned by the About call
//
// If a value is nil then it isn't supported by that backend.
type Usage struct {
	Total   *int64 `json:"total,omitempty"`   // quota of bytes that can be used
	Used    *int64 `json:"used,omitempty"`    // bytes in use
	Trashed *int64 `json:"trashed,omitempty"` // bytes in trash
	Free    *int64 `json:"free,omitempty"`    // bytes which can be uploaded before reaching the quota
}

// NewUsageValue returns a pointer to a copy of value for use in Usage
func NewUsageValue(value int64) *int64 {
	p := new(int64)
	*p = value
	return p
}

// CheckClose is a utility function used to check the return from
// Close in a defer statement.
func CheckClose(c io.Closer, err *error) {
	cerr := c.Close()
	if *err == nil {
		*err = cerr
	}
}

// StaticObjectInfo is an ObjectInfo which can be constructed from
// scratch, for Put calls which have no source Object.
type StaticObjectInfo struct {
	remote  string
	modTime time.Time
	size    int64
}

// NewStaticObjectInfo returns a static ObjectInfo
func NewStaticObjectInfo(remote string, modTime time.Time, size int64) *StaticObjectInfo {
	return &StaticObjectInfo{
		remote:  remote,
		modTime: modTime,
		size:    size,
	}
}

// Remote returns the remote path
func (i *StaticObjectInfo) Remote() string { return i.remote }

// Size returns the size of the file
func (i *StaticObjectInfo) Size() int64 { return i.size }

// ModTime returns the modification date of the file
func (i *StaticObjectInfo) ModTime(ctx context.Context) time.Time { return i.modTime }

var _ ObjectInfo = (*StaticObjectInfo)(nil)

// ErrorNotImplemented is returned by optional interfaces that a
// backend has chosen not to provide.
var ErrorNotImplemented = errors.New("not implemented")
