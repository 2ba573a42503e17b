package source

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/deepch/mkvmux/av"
)

// MultiFile reads a file and its additional parts as one seekable stream.
type MultiFile struct {
	files  []*os.File
	starts []int64
	size   int64
	pos    int64
}

func OpenMulti(names []string) (*MultiFile, error) {
	if len(names) == 0 {
		return nil, errors.New("source: no files to open")
	}
	self := &MultiFile{}
	for _, name := range names {
		f, err := os.Open(name)
		if err != nil {
			self.Close()
			return nil, &av.IOError{Op: "open", Err: err}
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			self.Close()
			return nil, &av.IOError{Op: "stat", Err: err}
		}
		self.files = append(self.files, f)
		self.starts = append(self.starts, self.size)
		self.size += fi.Size()
	}
	return self, nil
}

func (self *MultiFile) Size() int64 {
	return self.size
}

// part returns the file holding offset pos.
func (self *MultiFile) part(pos int64) int {
	i := len(self.starts) - 1
	for i > 0 && self.starts[i] > pos {
		i--
	}
	return i
}

func (self *MultiFile) Read(b []byte) (n int, err error) {
	for n < len(b) && self.pos < self.size {
		i := self.part(self.pos)
		var got int
		got, err = self.files[i].ReadAt(b[n:], self.pos-self.starts[i])
		n += got
		self.pos += int64(got)
		if err == io.EOF {
			err = nil
		}
		if err != nil {
			return
		}
		if got == 0 {
			break
		}
	}
	if n == 0 && len(b) > 0 {
		err = io.EOF
	}
	return
}

func (self *MultiFile) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekCurrent:
		offset += self.pos
	case io.SeekEnd:
		offset += self.size
	}
	if offset < 0 {
		return self.pos, errors.Errorf("source: seek to negative offset %d", offset)
	}
	self.pos = offset
	return offset, nil
}

func (self *MultiFile) Close() (err error) {
	for _, f := range self.files {
		err = multierr.Append(err, f.Close())
	}
	self.files = nil
	return
}
