// Package format registers every input reader.
package format

import (
	"sync"

	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/format/aac"
	"github.com/deepch/mkvmux/format/dirac"
	"github.com/deepch/mkvmux/format/h264"
	"github.com/deepch/mkvmux/format/ivf"
	"github.com/deepch/mkvmux/format/mkv"
	"github.com/deepch/mkvmux/format/mp4"
	"github.com/deepch/mkvmux/format/srt"
	"github.com/deepch/mkvmux/format/ts"
)

// Register adds the readers to h. Containers with a strong signature come
// first; the elementary stream readers only probe loosely.
func Register(h *avutil.Handlers) {
	h.Add(mkv.Handler)
	h.Add(mp4.Handler)
	h.Add(ivf.Handler)
	h.Add(ts.Handler)
	h.Add(dirac.Handler)
	h.Add(aac.Handler)
	h.Add(h264.Handler)
	h.Add(srt.Handler)
}

var once sync.Once

func RegisterAll() {
	once.Do(func() {
		Register(avutil.DefaultHandlers)
	})
}
