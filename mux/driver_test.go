package mux

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/codec"
	"github.com/deepch/mkvmux/codec/aacparser"
	"github.com/deepch/mkvmux/format"
	"github.com/deepch/mkvmux/format/mkv"
	"github.com/deepch/mkvmux/format/mkv/mkvio"
	"github.com/deepch/mkvmux/interleave"
	"github.com/deepch/mkvmux/packetizer"
	"github.com/deepch/mkvmux/source"
)

const subtitles = "1\n00:00:00,100 --> 00:00:00,200\nHi\n\n2\n00:00:00,150 --> 00:00:00,300\nThere\n"

// frame duration of 48 kHz AAC
const aacFrame = time.Second * 1024 / 48000

func adts(t *testing.T, n int) []byte {
	config := mpeg4audio.AudioSpecificConfig{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: 48000, ChannelCount: 2}
	var b []byte
	for i := 0; i < n; i++ {
		frame, err := aacparser.MakeADTS(config, bytes.Repeat([]byte{byte(i + 1)}, 12))
		require.NoError(t, err)
		b = append(b, frame...)
	}
	return b
}

func writeFile(t *testing.T, dir, name string, b []byte) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func handlers() *avutil.Handlers {
	h := &avutil.Handlers{}
	format.Register(h)
	return h
}

type collector struct {
	blocks map[int64][]*av.Block
}

func (self *collector) Push(blk *av.Block) error {
	self.blocks[blk.Track.ID] = append(self.blocks[blk.Track.ID], blk)
	return nil
}

// readBack demuxes a muxed file.
func readBack(t *testing.T, b []byte) ([]*av.Track, map[int64][]*av.Block) {
	d := mkv.NewDemuxer(bytes.NewReader(b), int64(len(b)))
	tracks, err := d.Identify()
	require.NoError(t, err)
	out := &collector{blocks: map[int64][]*av.Block{}}
	for _, tr := range tracks {
		tr.Number = uint64(tr.ID)
		_, err = d.CreatePacketizer(tr, out)
		require.NoError(t, err)
	}
	for {
		status, err := d.Read(false)
		require.NoError(t, err)
		if status == av.Done {
			break
		}
	}
	return tracks, out.blocks
}

func newDriver() *Driver {
	return NewDriver(Options{
		Cluster:  interleave.Limits{MaxDuration: 100 * time.Millisecond},
		Handlers: handlers(),
	})
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	var arena source.Arena
	audio := arena.Add(writeFile(t, dir, "audio.aac", adts(t, 10)))
	text := arena.Add(writeFile(t, dir, "subs.srt", []byte(subtitles)))

	d := newDriver()
	defer d.Close()
	require.NoError(t, d.Open(context.Background(), &arena))
	assert.Equal(t, source.FileTypeAAC, arena.Get(audio).Type)
	assert.Equal(t, source.FileTypeSRT, arena.Get(text).Type)
	assert.Len(t, arena.Get(audio).Tracks, 1)

	tracks := d.Tracks()
	require.Len(t, tracks, 2)
	assert.Equal(t, uint64(1), tracks[0].Number)
	assert.Equal(t, av.KindSubtitle, tracks[1].Kind)

	// one bad option rejects the whole set
	err := d.ApplyOptions(map[uint64]av.TrackOptions{
		1: {Language: "de"},
		2: {StereoMode: "side_by_side_left_first"},
	})
	require.Error(t, err)
	assert.Equal(t, "und", tracks[0].Language)
	require.NoError(t, d.ApplyOptions(map[uint64]av.TrackOptions{1: {Language: "de", Name: "Audio"}}))

	var buf seekablebuffer.Buffer
	res, err := d.Run(context.Background(), &buf)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.NoError(t, res.Err)
	assert.False(t, res.Stopped)
	assert.GreaterOrEqual(t, res.Clusters, 3)
	assert.Equal(t, 300*time.Millisecond, res.Duration)
	assert.Equal(t, 100, d.Progress())

	assert.Error(t, d.ApplyOptions(map[uint64]av.TrackOptions{1: {Name: "late"}}))

	out, blocks := readBack(t, buf.Bytes())
	require.Len(t, out, 2)
	assert.Equal(t, "ger", out[0].Language)
	assert.Equal(t, "Audio", out[0].Name)
	assert.Equal(t, av.AAC, out[0].Codec)
	assert.Equal(t, av.TEXT, out[1].Codec)
	assert.Len(t, blocks[out[0].ID], 10)
	subs := blocks[out[1].ID]
	require.Len(t, subs, 2)
	assert.Equal(t, 100*time.Millisecond, subs[0].Time)
	assert.Equal(t, "There", string(subs[1].Frames[0]))
}

func TestRunAppended(t *testing.T) {
	dir := t.TempDir()
	var arena source.Arena
	first := arena.Add(writeFile(t, dir, "a1.aac", adts(t, 10)))
	_, err := arena.Append(first, writeFile(t, dir, "a2.aac", adts(t, 10)))
	require.NoError(t, err)

	d := newDriver()
	defer d.Close()
	require.NoError(t, d.Open(context.Background(), &arena))
	require.Len(t, d.Tracks(), 1)

	var buf seekablebuffer.Buffer
	res, err := d.Run(context.Background(), &buf)
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.InDelta(t, float64(20*aacFrame), float64(res.Duration), float64(time.Millisecond))

	out, blocks := readBack(t, buf.Bytes())
	require.Len(t, out, 1)
	got := blocks[out[0].ID]
	require.Len(t, got, 20)
	assert.InDelta(t, float64(10*aacFrame), float64(got[10].Time), float64(time.Millisecond))
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i].Time, got[i-1].Time)
	}
}

func TestRunAdditionalParts(t *testing.T) {
	dir := t.TempDir()
	b := adts(t, 10)
	var arena source.Arena
	first := arena.Add(writeFile(t, dir, "a.aac.001", b[:45]))
	_, err := arena.AddAdditionalParts(first, []string{writeFile(t, dir, "a.aac.002", b[45:])})
	require.NoError(t, err)

	d := newDriver()
	defer d.Close()
	require.NoError(t, d.Open(context.Background(), &arena))

	var buf bytes.Buffer
	res, err := d.Run(context.Background(), &buf)
	require.NoError(t, err)
	assert.False(t, res.Degraded)

	els, err := mkvio.InitDocument(bytes.NewReader(buf.Bytes())).ParseTree()
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.True(t, els[1].UnknownSize)

	out, blocks := readBack(t, buf.Bytes())
	require.Len(t, out, 1)
	assert.Len(t, blocks[out[0].ID], 10)
}

func TestRunMismatchedAppend(t *testing.T) {
	dir := t.TempDir()
	var arena source.Arena
	first := arena.Add(writeFile(t, dir, "a.aac", adts(t, 5)))
	_, err := arena.Append(first, writeFile(t, dir, "s.srt", []byte(subtitles)))
	require.NoError(t, err)

	d := newDriver()
	defer d.Close()
	require.NoError(t, d.Open(context.Background(), &arena))

	var buf seekablebuffer.Buffer
	res, err := d.Run(context.Background(), &buf)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Error(t, res.Err)

	out, blocks := readBack(t, buf.Bytes())
	require.Len(t, out, 1)
	assert.Len(t, blocks[out[0].ID], 5)
}

func TestRunStopped(t *testing.T) {
	dir := t.TempDir()
	var arena source.Arena
	arena.Add(writeFile(t, dir, "a.aac", adts(t, 5)))

	d := newDriver()
	defer d.Close()
	require.NoError(t, d.Open(context.Background(), &arena))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf seekablebuffer.Buffer
	res, err := d.Run(ctx, &buf)
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 0, res.Clusters)

	// the output is finalized all the same
	els, err := mkvio.InitDocument(bytes.NewReader(buf.Bytes())).ParseTree()
	require.NoError(t, err)
	require.Len(t, els, 2)
	assert.False(t, els[1].UnknownSize)
	assert.NotNil(t, els[1].Child(mkvio.ElementTracks.ID))
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	var empty source.Arena
	assert.Error(t, newDriver().Open(context.Background(), &empty))

	var unknown source.Arena
	unknown.Add(writeFile(t, dir, "x.bin", []byte{0, 1, 2, 3, 4, 5, 6, 7}))
	assert.Error(t, newDriver().Open(context.Background(), &unknown))

	var missing source.Arena
	missing.Add(filepath.Join(dir, "missing.aac"))
	assert.Error(t, newDriver().Open(context.Background(), &missing))

	_, err := newDriver().Run(context.Background(), &bytes.Buffer{})
	assert.Error(t, err)
}

const failingFrames = 10

// failingReader feeds two VP8 tracks one frame per read and reports a
// broken frame on track 2 at its third read.
type failingReader struct {
	tracks map[int64]av.Packetizer
	reads  int
}

func (self *failingReader) Identify() ([]*av.Track, error) {
	return []*av.Track{
		av.NewTrack(1, av.KindVideo, av.VP8, codec.IDVP8),
		av.NewTrack(2, av.KindVideo, av.VP8, codec.IDVP8),
	}, nil
}

func (self *failingReader) CreatePacketizer(t *av.Track, sink av.BlockSink) (av.Packetizer, error) {
	p, err := packetizer.New(t, sink, packetizer.Options{})
	if err != nil {
		return nil, err
	}
	self.tracks[t.ID] = p
	return p, nil
}

func (self *failingReader) Read(force bool) (av.Status, error) {
	self.reads++
	at := time.Duration(self.reads-1) * 40 * time.Millisecond
	var err error
	for id := int64(1); id <= 2; id++ {
		p := self.tracks[id]
		if p == nil {
			continue
		}
		if id == 2 && self.reads == 3 {
			delete(self.tracks, id)
			err = &av.TrackError{TrackID: id, Err: errors.New("corrupt frame")}
			continue
		}
		pkt := av.Packet{Time: at, Duration: 40 * time.Millisecond, IsKeyFrame: true, Data: []byte{byte(self.reads)}}
		if perr := p.Process(pkt); perr != nil {
			return av.MoreData, perr
		}
	}
	if self.reads == failingFrames {
		return av.Done, err
	}
	return av.MoreData, err
}

func (self *failingReader) Progress() int {
	return self.reads * 100 / failingFrames
}

func TestRunTrackError(t *testing.T) {
	h := &avutil.Handlers{}
	h.Add(func(rh *avutil.RegisterHandler) {
		rh.Name = "failing"
		rh.Probe = func(r io.ReadSeeker, size int64) bool {
			b, _ := avutil.ReadPrefix(r, 4)
			return string(b) == "FAIL"
		}
		rh.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
			return &failingReader{tracks: map[int64]av.Packetizer{}}, nil
		}
	})
	format.Register(h)

	var arena source.Arena
	arena.Add(writeFile(t, t.TempDir(), "video.bin", []byte("FAIL")))
	d := NewDriver(Options{
		Cluster:  interleave.Limits{MaxDuration: 100 * time.Millisecond},
		Handlers: h,
	})
	defer d.Close()
	require.NoError(t, d.Open(context.Background(), &arena))
	require.Len(t, d.Tracks(), 2)

	var buf seekablebuffer.Buffer
	res, err := d.Run(context.Background(), &buf)
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "output track 2")
	assert.Contains(t, res.Err.Error(), "corrupt frame")
	assert.NotContains(t, res.Err.Error(), "output track 1")
	assert.Equal(t, failingFrames*40*time.Millisecond, res.Duration)

	out, blocks := readBack(t, buf.Bytes())
	require.Len(t, out, 2)
	assert.Len(t, blocks[out[0].ID], failingFrames)
	assert.Len(t, blocks[out[1].ID], 2)
}
