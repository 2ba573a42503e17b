// Package stereo holds the stereoscopic presentation modes a video track can carry.
//
// Mode ordinals are written verbatim into the StereoMode element of the output,
// so the table below must never be reordered.
package stereo

import (
	"strings"
	"sync"
)

type Mode int

const Invalid Mode = -1

const (
	Mono Mode = iota
	SideBySideLeftFirst
	TopBottomRightFirst
	TopBottomLeftFirst
	CheckboardRightFirst
	CheckboardLeftFirst
	RowInterleavedRightFirst
	RowInterleavedLeftFirst
	ColumnInterleavedRightFirst
	ColumnInterleavedLeftFirst
	Anaglyph
	SideBySideRightFirst
)

const Unknown = "unknown"

// Registry maps keywords and display names to modes. The zero value is usable;
// the tables are filled on first use and are read-only afterwards.
type Registry struct {
	once         sync.Once
	keywords     []string
	translations []string
}

func NewRegistry() *Registry {
	r := &Registry{}
	r.Init()
	return r
}

// Init fills the tables. It is safe to call any number of times from any goroutine.
func (self *Registry) Init() {
	self.once.Do(func() {
		self.keywords = []string{
			"mono",
			"side_by_side_left_first",
			"top_bottom_right_first",
			"top_bottom_left_first",
			"checkboard_right_first",
			"checkboard_left_first",
			"row_interleaved_right_first",
			"row_interleaved_left_first",
			"column_interleaved_right_first",
			"column_interleaved_left_first",
			"anaglyph",
			"side_by_side_right_first",
		}
		self.translations = []string{
			"mono",
			"side by side (left first)",
			"top bottom (right first)",
			"top bottom (left first)",
			"checkboard (right first)",
			"checkboard (left first)",
			"row interleaved (right first)",
			"row interleaved (left first)",
			"column interleaved (right first)",
			"column interleaved (left first)",
			"anaglyph",
			"side by side (right first)",
		}
	})
}

func (self *Registry) Count() int {
	self.Init()
	return len(self.keywords)
}

func (self *Registry) Valid(idx int) bool {
	self.Init()
	return 0 <= idx && idx < len(self.keywords)
}

// Parse returns Invalid for anything that is not an exact keyword match.
func (self *Registry) Parse(keyword string) Mode {
	self.Init()
	for i, k := range self.keywords {
		if k == keyword {
			return Mode(i)
		}
	}
	return Invalid
}

func (self *Registry) Keyword(mode Mode) string {
	if !self.Valid(int(mode)) {
		return ""
	}
	return self.keywords[mode]
}

func (self *Registry) Translate(mode Mode) string {
	if !self.Valid(int(mode)) {
		return Unknown
	}
	return self.translations[mode]
}

// Keywords renders the keyword table for help and error messages: 'mono', 'anaglyph', ...
func (self *Registry) Keywords() string {
	self.Init()
	var b strings.Builder
	for i, k := range self.keywords {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('\'')
		b.WriteString(k)
		b.WriteByte('\'')
	}
	return b.String()
}
