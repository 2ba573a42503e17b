// Package source keeps the list of input files of one mux job. Files are
// stored in a flat table; additional parts and appended files refer to their
// parent by index.
package source

import (
	"github.com/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/deepch/mkvmux/av"
)

// Index addresses a file in an Arena.
type Index int

// None is the parent of top-level files.
const None Index = -1

type File struct {
	Name      string
	Container string
	Type      FileType
	Tracks    []*av.Track

	additionalPart bool
	appended       bool
	parent         Index
	parts          []Index
	appendedFiles  []Index
}

// IsAdditionalPart reports a continuation file read as part of its
// parent's byte stream.
func (self *File) IsAdditionalPart() bool {
	return self.additionalPart
}

// IsAppended reports a file whose tracks continue its parent's tracks.
func (self *File) IsAppended() bool {
	return self.appended
}

func (self *File) IsValid() bool {
	return self.Container != "" || self.additionalPart
}

type Arena struct {
	files []*File
	roots []Index
}

func (self *Arena) Len() int {
	return len(self.files)
}

// Get returns the file at i, nil when i is out of range.
func (self *Arena) Get(i Index) *File {
	if i < 0 || int(i) >= len(self.files) {
		return nil
	}
	return self.files[i]
}

func (self *Arena) Roots() []Index {
	return append([]Index(nil), self.roots...)
}

func (self *Arena) add(f *File) Index {
	i := Index(len(self.files))
	self.files = append(self.files, f)
	return i
}

// Add adds a top-level file.
func (self *Arena) Add(name string) Index {
	i := self.add(&File{Name: name, parent: None})
	self.roots = append(self.roots, i)
	return i
}

// AddAdditionalParts adds continuation files to the file at to. When to is
// itself an additional part the files go to its parent. Names already
// present are dropped; the rest is added in natural order.
func (self *Arena) AddAdditionalParts(to Index, names []string) (added []Index, err error) {
	f := self.Get(to)
	if f == nil {
		return nil, errors.Errorf("source: no file at %d", to)
	}
	if f.additionalPart {
		to = f.parent
		f = self.files[to]
	}

	seen := map[string]bool{f.Name: true}
	for _, p := range f.parts {
		seen[self.files[p].Name] = true
	}
	var fresh []string
	for _, name := range names {
		if !seen[name] {
			seen[name] = true
			fresh = append(fresh, name)
		}
	}
	collate.New(language.Und, collate.Numeric).SortStrings(fresh)

	for _, name := range fresh {
		i := self.add(&File{Name: name, additionalPart: true, parent: to})
		f.parts = append(f.parts, i)
		added = append(added, i)
	}
	return
}

// Append adds a file whose tracks continue the tracks of the file at to.
// Appending to an additional part or to an appended file appends to the
// top-level file they belong to.
func (self *Arena) Append(to Index, name string) (Index, error) {
	f := self.Get(to)
	if f == nil {
		return None, errors.Errorf("source: no file at %d", to)
	}
	for f.parent != None {
		to = f.parent
		f = self.files[to]
	}
	i := self.add(&File{Name: name, appended: true, parent: to})
	f.appendedFiles = append(f.appendedFiles, i)
	return i, nil
}

func (self *Arena) Parent(i Index) Index {
	if f := self.Get(i); f != nil {
		return f.parent
	}
	return None
}

// Children lists the additional parts of i followed by its appended files.
func (self *Arena) Children(i Index) []Index {
	f := self.Get(i)
	if f == nil {
		return nil
	}
	out := append([]Index(nil), f.parts...)
	return append(out, f.appendedFiles...)
}

// Parts lists the file names read as one byte stream for i.
func (self *Arena) Parts(i Index) []string {
	f := self.Get(i)
	if f == nil {
		return nil
	}
	names := []string{f.Name}
	for _, p := range f.parts {
		names = append(names, self.files[p].Name)
	}
	return names
}

// Appended lists the files appended to i in order.
func (self *Arena) Appended(i Index) []Index {
	if f := self.Get(i); f != nil {
		return append([]Index(nil), f.appendedFiles...)
	}
	return nil
}

// Row is the position of i among its siblings, -1 if i is unknown.
func (self *Arena) Row(i Index) int {
	f := self.Get(i)
	if f == nil {
		return -1
	}
	siblings := self.roots
	if f.parent != None {
		siblings = self.Children(f.parent)
	}
	for row, s := range siblings {
		if s == i {
			return row
		}
	}
	return -1
}

// Walk visits every file depth first in display order.
func (self *Arena) Walk(fn func(i Index, depth int) error) error {
	var walk func(i Index, depth int) error
	walk = func(i Index, depth int) error {
		if err := fn(i, depth); err != nil {
			return err
		}
		for _, c := range self.Children(i) {
			if err := walk(c, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range self.roots {
		if err := walk(r, 0); err != nil {
			return err
		}
	}
	return nil
}

// SetContainer records the container name identify reported for i.
func (self *Arena) SetContainer(i Index, container string) {
	if f := self.Get(i); f != nil {
		f.Container = container
		f.Type = TypeOf(container)
	}
}

func (self *Arena) IsValid(i Index) bool {
	f := self.Get(i)
	return f != nil && f.IsValid()
}
