package avutil

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/av"
)

type nopReader struct{ name string }

func (self *nopReader) Identify() ([]*av.Track, error) { return nil, nil }
func (self *nopReader) CreatePacketizer(*av.Track, av.BlockSink) (av.Packetizer, error) {
	return nil, nil
}
func (self *nopReader) Read(bool) (av.Status, error) { return av.Done, nil }
func (self *nopReader) Progress() int                { return 100 }

func magic(prefix string) func(r io.ReadSeeker, size int64) bool {
	return func(r io.ReadSeeker, size int64) bool {
		b, err := ReadPrefix(r, len(prefix))
		return err == nil && string(b) == prefix
	}
}

func TestProbeOrder(t *testing.T) {
	var hs Handlers
	var calls []string
	hs.Add(func(h *RegisterHandler) {
		h.Name = "Greedy"
		h.Probe = func(r io.ReadSeeker, size int64) bool {
			calls = append(calls, "greedy")
			// consumes input and fails
			io.Copy(io.Discard, r)
			return false
		}
	})
	hs.Add(func(h *RegisterHandler) {
		h.Name = "First"
		h.Probe = magic("ab")
	})
	hs.Add(func(h *RegisterHandler) {
		h.Name = "Second"
		h.Probe = magic("abc")
	})

	r := bytes.NewReader([]byte("abcdef"))
	h, err := hs.Probe(r, r.Size())
	require.NoError(t, err)
	assert.Equal(t, "First", h.Name)
	assert.Equal(t, []string{"greedy"}, calls)

	pos, _ := r.Seek(0, io.SeekCurrent)
	assert.Equal(t, int64(0), pos)

	_, err = hs.Probe(bytes.NewReader([]byte("zz")), 2)
	assert.Equal(t, ErrUnknownFormat, err)

	assert.Equal(t, "Second", hs.Find("second").Name)
	assert.Nil(t, hs.Find("none"))
	assert.Len(t, hs.All(), 3)
}

func TestOpenSkipsFormatErrors(t *testing.T) {
	var hs Handlers
	hs.Add(func(h *RegisterHandler) {
		h.Name = "Broken"
		h.Probe = magic("ab")
		h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
			return nil, av.FormatErr("broken", "header", 0, nil)
		}
	})
	hs.Add(func(h *RegisterHandler) {
		h.Name = "Working"
		h.Probe = magic("ab")
		h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
			b, err := ReadPrefix(r, 2)
			if err != nil || string(b) != "ab" {
				return nil, io.ErrUnexpectedEOF
			}
			return &nopReader{name: "working"}, nil
		}
	})

	r := bytes.NewReader([]byte("abc"))
	h, reader, err := hs.Open(r, r.Size())
	require.NoError(t, err)
	assert.Equal(t, "Working", h.Name)
	assert.Equal(t, "working", reader.(*nopReader).name)
}

type badReader struct{ nopReader }

func (self *badReader) Identify() ([]*av.Track, error) {
	return nil, av.FormatErr("bad", "tracks", 3, nil)
}

func TestIdentifySkipsFormatErrors(t *testing.T) {
	var hs Handlers
	hs.Add(func(h *RegisterHandler) {
		h.Name = "Bad"
		h.Probe = magic("ab")
		h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
			return &badReader{}, nil
		}
	})
	r := bytes.NewReader([]byte("abc"))
	_, _, _, err := hs.Identify(r, r.Size())
	require.Error(t, err)
	assert.True(t, av.IsFormatError(err))

	hs.Add(func(h *RegisterHandler) {
		h.Name = "Good"
		h.Probe = magic("ab")
		h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
			return &nopReader{name: "good"}, nil
		}
	})
	h, reader, tracks, err := hs.Identify(r, r.Size())
	require.NoError(t, err)
	assert.Equal(t, "Good", h.Name)
	assert.Equal(t, "good", reader.(*nopReader).name)
	assert.Empty(t, tracks)
}

func TestPercent(t *testing.T) {
	assert.Equal(t, 0, Percent(10, 0))
	assert.Equal(t, 0, Percent(0, 100))
	assert.Equal(t, 50, Percent(50, 100))
	assert.Equal(t, 100, Percent(150, 100))
}

func TestReadPrefix(t *testing.T) {
	b, err := ReadPrefix(bytes.NewReader([]byte("abc")), 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
}
