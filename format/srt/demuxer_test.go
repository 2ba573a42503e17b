package srt

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"

	"github.com/deepch/mkvmux/av"
)

const sample = "\ufeff1\r\n00:00:01,000 --> 00:00:02,500\r\nHello\r\nworld\r\n\r\n" +
	"2\n00:00:03.2 --> 00:00:04,000\nSecond\n\n" +
	"3\nbroken timing\ntext\n\n" +
	"4\n01:00:00,000 --> 01:00:01,000\nLast"

type collector struct {
	blocks []*av.Block
}

func (self *collector) Push(blk *av.Block) error {
	self.blocks = append(self.blocks, blk)
	return nil
}

func TestParseTiming(t *testing.T) {
	for _, tc := range []struct {
		line       string
		start, end time.Duration
		ok         bool
	}{
		{"00:00:01,000 --> 00:00:02,500", time.Second, 2500 * time.Millisecond, true},
		{"00:01:00.5 --> 00:01:01.25", time.Minute + 500*time.Millisecond, time.Minute + time.Second + 250*time.Millisecond, true},
		{"-0:00:01,000 --> 00:00:01,000", -time.Second, time.Second, true},
		{"00:00:01 --> 00:00:02", 0, 0, false},
	} {
		start, end, ok := ParseTiming(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.start, start, tc.line)
		assert.Equal(t, tc.end, end, tc.line)
	}
}

func TestProbe(t *testing.T) {
	assert.True(t, Probe([]byte(sample)))
	assert.True(t, Probe([]byte("\n\n"+sample[3:])))
	assert.False(t, Probe([]byte("WEBVTT\n\n00:00.000 --> 00:01.000\n")))
	assert.False(t, Probe([]byte{0x1a, 0x45, 0xdf, 0xa3}))

	utf16, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(sample[3:]))
	require.NoError(t, err)
	assert.True(t, Probe(utf16))
}

func read(t *testing.T, b []byte) []*av.Block {
	d := NewDemuxer(bytes.NewReader(b), int64(len(b)))
	tracks, err := d.Identify()
	require.NoError(t, err)
	tracks[0].Number = 1
	var out collector
	_, err = d.CreatePacketizer(tracks[0], &out)
	require.NoError(t, err)
	for {
		status, err := d.Read(false)
		require.NoError(t, err)
		if status == av.Done {
			break
		}
	}
	assert.Equal(t, 100, d.Progress())
	return out.blocks
}

func TestRead(t *testing.T) {
	blocks := read(t, []byte(sample))
	require.Len(t, blocks, 3)
	assert.Equal(t, "Hello\nworld", string(blocks[0].Frames[0]))
	assert.Equal(t, time.Second, blocks[0].Time)
	assert.Equal(t, 1500*time.Millisecond, blocks[0].Duration)
	assert.True(t, blocks[0].HasDuration)
	assert.Equal(t, 3200*time.Millisecond, blocks[1].Time)
	assert.Equal(t, "Last", string(blocks[2].Frames[0]))
	assert.Equal(t, time.Hour, blocks[2].Time)
}

func TestReadUTF16(t *testing.T) {
	utf16, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(sample[3:]))
	require.NoError(t, err)
	blocks := read(t, utf16)
	require.Len(t, blocks, 3)
	assert.Equal(t, "Hello\nworld", string(blocks[0].Frames[0]))
}
