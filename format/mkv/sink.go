package mkv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/deepch/mkvmux/av"
)

const (
	KB = 1024
	MB = 1024 * KB
	GB = 1024 * MB
)

// DefaultMinFree is the free space an output directory needs before
// writing starts.
const DefaultMinFree = 64 * MB

// FileSink writes to a temporary file next to the destination. Commit
// renames it into place once the file is complete, so that an aborted run
// never leaves a half written file under the final name.
//
// The destination may hold the placeholders {start_year}, {start_month},
// {start_day}, {start_hour}, {start_minute}, {start_second},
// {start_unix_second}, {duration_second}, {duration_millisecond},
// {host_name} and {host_name_short}; they are filled in on Commit.
type FileSink struct {
	*os.File

	path  string
	start time.Time
	done  bool
}

// CreateFile opens the temporary file for path after checking that the
// directory has at least minFree bytes available.
func CreateFile(path string, minFree uint64) (self *FileSink, err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0755); err != nil {
		return nil, &av.IOError{Op: "mkdir", Err: err}
	}
	if minFree > 0 {
		if usage, uerr := disk.Usage(dir); uerr == nil && usage.Free < minFree {
			return nil, &av.IOError{Op: "create", Err: errors.Errorf("%s: %d bytes free, need %d", dir, usage.Free, minFree)}
		}
	}

	self = &FileSink{path: path, start: time.Now().UTC()}
	tmp := filepath.Join(dir, fmt.Sprintf("tmp_%s_%d.mkv", uuid.New(), self.start.Unix()))
	if self.File, err = os.Create(tmp); err != nil {
		return nil, &av.IOError{Op: "create", Err: err}
	}
	return
}

// Name is the path that Commit will produce for a file of duration d.
func (self *FileSink) Name(d time.Duration) string {
	host, _ := os.Hostname()
	short, _, _ := strings.Cut(host, ".")
	s := self.start
	return strings.NewReplacer(
		"{start_year}", fmt.Sprintf("%d", s.Year()),
		"{start_month}", fmt.Sprintf("%02d", int(s.Month())),
		"{start_day}", fmt.Sprintf("%02d", s.Day()),
		"{start_hour}", fmt.Sprintf("%02d", s.Hour()),
		"{start_minute}", fmt.Sprintf("%02d", s.Minute()),
		"{start_second}", fmt.Sprintf("%02d", s.Second()),
		"{start_unix_second}", fmt.Sprintf("%d", s.Unix()),
		"{duration_second}", fmt.Sprintf("%f", d.Seconds()),
		"{duration_millisecond}", fmt.Sprintf("%d", d.Milliseconds()),
		"{host_name}", host,
		"{host_name_short}", short,
	).Replace(self.path)
}

// Commit closes the file and moves it to its final name.
func (self *FileSink) Commit(d time.Duration) (name string, err error) {
	if self.done {
		return "", errors.Errorf("%s: already closed", self.path)
	}
	self.done = true
	tmp := self.File.Name()
	if err = self.File.Close(); err != nil {
		return "", &av.IOError{Op: "close", Err: err}
	}
	name = self.Name(d)
	if err = os.Rename(tmp, name); err != nil {
		return "", &av.IOError{Op: "rename", Err: err}
	}
	return
}

// Abort closes and removes the temporary file.
func (self *FileSink) Abort() error {
	if self.done {
		return nil
	}
	self.done = true
	tmp := self.File.Name()
	self.File.Close()
	return os.Remove(tmp)
}

// CapBufferLimit lowers limit to a quarter of the available memory.
func CapBufferLimit(limit int64) int64 {
	vm, err := mem.VirtualMemory()
	if err != nil || vm.Available == 0 {
		return limit
	}
	if avail := int64(vm.Available / 4); limit <= 0 || limit > avail {
		return avail
	}
	return limit
}
