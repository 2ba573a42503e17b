// Package srt reads SubRip subtitle files.
package srt

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec"
)

var timing = regexp.MustCompile(`^\s*(-?\d+):(\d+):(\d+)[,.](\d+)\s*-->\s*(-?\d+):(\d+):(\d+)[,.](\d+)`)

// ParseTiming decodes a "00:00:01,000 --> 00:00:02,500" line.
func ParseTiming(line string) (start, end time.Duration, ok bool) {
	m := timing.FindStringSubmatch(line)
	if m == nil {
		return
	}
	ts := func(h, mi, s, frac string) time.Duration {
		hv, _ := strconv.Atoi(h)
		mv, _ := strconv.Atoi(mi)
		sv, _ := strconv.Atoi(s)
		// fractions are milliseconds; shorter or longer ones are scaled
		for len(frac) < 3 {
			frac += "0"
		}
		fv, _ := strconv.Atoi(frac[:3])
		neg := strings.HasPrefix(h, "-")
		if neg {
			hv = -hv
		}
		d := time.Duration(hv)*time.Hour + time.Duration(mv)*time.Minute +
			time.Duration(sv)*time.Second + time.Duration(fv)*time.Millisecond
		if neg {
			d = -d
		}
		return d
	}
	start = ts(m[1], m[2], m[3], m[4])
	end = ts(m[5], m[6], m[7], m[8])
	return start, end, true
}

func decoder(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// Probe accepts input whose first entry has a counter line followed by a
// timing line.
func Probe(b []byte) bool {
	text, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), b)
	if err != nil {
		return false
	}
	lines := strings.Split(strings.ReplaceAll(string(text), "\r\n", "\n"), "\n")
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i+1 >= len(lines) {
		return false
	}
	if _, err := strconv.Atoi(strings.TrimSpace(lines[i])); err != nil {
		return false
	}
	_, _, ok := ParseTiming(lines[i+1])
	return ok
}

type Demuxer struct {
	avutil.Router

	cnt     *avutil.Counter
	scanner *bufio.Scanner
	size    int64

	track *av.Track
	done  bool
}

func NewDemuxer(r io.Reader, size int64) *Demuxer {
	cnt := &avutil.Counter{R: r}
	scanner := bufio.NewScanner(decoder(cnt))
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	return &Demuxer{cnt: cnt, scanner: scanner, size: size}
}

func (self *Demuxer) Identify() (tracks []*av.Track, err error) {
	if self.track == nil {
		self.track = av.NewTrack(0, av.KindSubtitle, av.TEXT, codec.IDTextUTF8)
		self.SetTracks([]*av.Track{self.track})
	}
	return []*av.Track{self.track}, nil
}

func (self *Demuxer) scan() (string, bool) {
	if !self.scanner.Scan() {
		return "", false
	}
	return strings.TrimRight(self.scanner.Text(), "\r"), true
}

// Read passes one subtitle entry on. Entries without a valid timing line
// are skipped.
func (self *Demuxer) Read(force bool) (status av.Status, err error) {
	if self.done {
		return av.Done, nil
	}

	for {
		line, ok := self.scan()
		if !ok {
			break
		}
		start, end, ok := ParseTiming(line)
		if !ok {
			continue
		}

		var text bytes.Buffer
		for {
			l, ok := self.scan()
			if !ok || strings.TrimSpace(l) == "" {
				break
			}
			if text.Len() > 0 {
				text.WriteByte('\n')
			}
			text.WriteString(l)
		}

		if err = self.Route(av.Packet{
			TrackID:    self.track.ID,
			IsKeyFrame: true,
			Time:       start,
			Duration:   end - start,
			Data:       text.Bytes(),
		}); err != nil {
			return av.MoreData, err
		}
		return av.MoreData, nil
	}

	self.done = true
	if err = self.scanner.Err(); err != nil {
		return av.Done, self.Fail(self.track.ID, &av.IOError{Op: "read", Err: err})
	}
	return av.Done, self.Flush()
}

func (self *Demuxer) Progress() int {
	if self.done {
		return 100
	}
	return avutil.Percent(self.cnt.N, self.size)
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "SRT subtitles"
	h.Ext = ".srt"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, 4096)
		return err == nil && Probe(b)
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(r, size), nil
	}
}
