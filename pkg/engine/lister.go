package engine

import (
	"os"

	"github.com/spf13/afero"
)

// Entry is one filesystem entry found under the source root.
type Entry struct {
	Path      string
	IsFile    bool
	IsSymlink bool
}

// Lister walks a root and calls fn for every entry. Order is unspecified.
// Returning an error from fn stops the walk and is returned as is.
type Lister interface {
	List(root string, fn func(Entry) error) error
}

// WalkLister lists entries with afero.Walk, which lstats when the backing
// filesystem supports it, so symlinks are reported and never followed.
type WalkLister struct {
	Fs afero.Fs
}

// NewWalkLister creates a WalkLister over fs.
func NewWalkLister(fs afero.Fs) *WalkLister {
	return &WalkLister{Fs: fs}
}

func (l *WalkLister) List(root string, fn func(Entry) error) error {
	return afero.Walk(l.Fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return enumerationError(path, err)
		}
		mode := info.Mode()
		return fn(Entry{
			Path:      path,
			IsFile:    mode.IsRegular(),
			IsSymlink: mode&os.ModeSymlink != 0,
		})
	})
}
