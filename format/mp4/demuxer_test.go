package mp4

import (
	"bytes"
	"testing"
	"time"

	"github.com/abema/go-mp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/codec/h264parser"
)

var (
	sps = []byte{
		0x67, 0x64, 0x00, 0x0c, 0xac, 0x3b, 0x50, 0xb0, 0x4b, 0x42, 0x00, 0x00,
		0x03, 0x00, 0x02, 0x00, 0x00, 0x03, 0x00, 0x3d, 0x08,
	}
	pps = []byte{0x68, 0xee, 0x3c, 0x80}
)

type collector struct {
	blocks []*av.Block
}

func (self *collector) Push(blk *av.Block) error {
	self.blocks = append(self.blocks, blk)
	return nil
}

type builder struct {
	t *testing.T
	w *mp4.Writer
}

func (self *builder) box(typ mp4.BoxType, payload mp4.IImmutableBox, children ...func()) {
	_, err := self.w.StartBox(&mp4.BoxInfo{Type: typ})
	require.NoError(self.t, err)
	if payload != nil {
		_, err = mp4.Marshal(self.w, payload, mp4.Context{})
		require.NoError(self.t, err)
	}
	for _, c := range children {
		c()
	}
	_, err = self.w.EndBox()
	require.NoError(self.t, err)
}

func (self *builder) raw(typ mp4.BoxType, b []byte) func() {
	return func() {
		_, err := self.w.StartBox(&mp4.BoxInfo{Type: typ})
		require.NoError(self.t, err)
		_, err = self.w.Write(b)
		require.NoError(self.t, err)
		_, err = self.w.EndBox()
		require.NoError(self.t, err)
	}
}

func sampleFile(t *testing.T) []byte {
	cd, err := h264parser.NewCodecDataFromSPSAndPPS(sps, pps)
	require.NoError(t, err)

	samples := [][]byte{
		{0, 0, 0, 2, 0x65, 0x88},
		{0, 0, 0, 2, 0x41, 0x9a},
		{0, 0, 0, 3, 0x41, 0x9b, 0x01},
	}

	var buf seekablebuffer.Buffer
	b := &builder{t: t, w: mp4.NewWriter(&buf)}
	b.box(mp4.BoxTypeFtyp(), &mp4.Ftyp{
		MajorBrand:       [4]byte{'i', 's', 'o', 'm'},
		CompatibleBrands: []mp4.CompatibleBrandElem{{CompatibleBrand: [4]byte{'i', 's', 'o', 'm'}}},
	})

	mdat, err := b.w.StartBox(&mp4.BoxInfo{Type: mp4.BoxTypeMdat()})
	require.NoError(t, err)
	for _, s := range samples {
		_, err = b.w.Write(s)
		require.NoError(t, err)
	}
	_, err = b.w.EndBox()
	require.NoError(t, err)
	dataOffset := uint32(mdat.Offset + mdat.HeaderSize)

	stbl := func() {
		b.box(mp4.BoxTypeStsd(), &mp4.Stsd{EntryCount: 1}, func() {
			b.box(mp4.BoxTypeAvc1(), &mp4.VisualSampleEntry{
				SampleEntry: mp4.SampleEntry{
					AnyTypeBox:         mp4.AnyTypeBox{Type: mp4.BoxTypeAvc1()},
					DataReferenceIndex: 1,
				},
				Width:           352,
				Height:          288,
				Horizresolution: 0x480000,
				Vertresolution:  0x480000,
				FrameCount:      1,
				Depth:           0x18,
				PreDefined3:     -1,
			}, b.raw(mp4.BoxTypeAvcC(), cd.Record))
		})
		b.box(mp4.BoxTypeStts(), &mp4.Stts{EntryCount: 1, Entries: []mp4.SttsEntry{{SampleCount: 3, SampleDelta: 40}}})
		b.box(mp4.BoxTypeStss(), &mp4.Stss{EntryCount: 1, SampleNumber: []uint32{1}})
		b.box(mp4.BoxTypeStsc(), &mp4.Stsc{EntryCount: 1, Entries: []mp4.StscEntry{{FirstChunk: 1, SamplesPerChunk: 3, SampleDescriptionIndex: 1}}})
		b.box(mp4.BoxTypeStsz(), &mp4.Stsz{SampleCount: 3, EntrySize: []uint32{6, 6, 7}})
		b.box(mp4.BoxTypeStco(), &mp4.Stco{EntryCount: 1, ChunkOffset: []uint32{dataOffset}})
	}

	b.box(mp4.BoxTypeMoov(), nil, func() {
		b.box(mp4.BoxTypeMvhd(), &mp4.Mvhd{Timescale: 1000, DurationV0: 120, Rate: 0x10000, Volume: 0x100, NextTrackID: 2})
		b.box(mp4.BoxTypeTrak(), nil, func() {
			b.box(mp4.BoxTypeTkhd(), &mp4.Tkhd{TrackID: 1, DurationV0: 120})
			b.box(mp4.BoxTypeMdia(), nil, func() {
				b.box(mp4.BoxTypeMdhd(), &mp4.Mdhd{Timescale: 1000, DurationV0: 120, Language: [3]byte{'e' - 0x60, 'n' - 0x60, 'g' - 0x60}})
				b.box(mp4.BoxTypeHdlr(), &mp4.Hdlr{HandlerType: [4]byte{'v', 'i', 'd', 'e'}, Name: "VideoHandler"})
				b.box(mp4.BoxTypeMinf(), nil, func() {
					b.box(mp4.BoxTypeStbl(), nil, stbl)
				})
			})
		})
	})
	return buf.Bytes()
}

func TestProbe(t *testing.T) {
	assert.True(t, Probe([]byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p'}))
	assert.True(t, Probe([]byte{0, 0, 0, 1, 'm', 'd', 'a', 't'}))
	assert.False(t, Probe([]byte{0, 0, 0, 4, 'f', 't', 'y', 'p'}))
	assert.False(t, Probe([]byte{0x1a, 0x45, 0xdf, 0xa3, 0, 0, 0, 0}))
}

func TestDecoderSpecificInfo(t *testing.T) {
	esds := &mp4.Esds{Descriptors: []mp4.Descriptor{
		{Tag: mp4.ESDescrTag, ESDescriptor: &mp4.ESDescriptor{ESID: 1}},
		{Tag: mp4.DecSpecificInfoTag, Data: []byte{0x11, 0x90}},
	}}
	assert.Equal(t, []byte{0x11, 0x90}, decoderSpecificInfo(esds))
	assert.Nil(t, decoderSpecificInfo(nil))
}

func TestRead(t *testing.T) {
	b := sampleFile(t)
	require.True(t, Probe(b))

	d := NewDemuxer(bytes.NewReader(b), int64(len(b)))
	tracks, err := d.Identify()
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	tr := tracks[0]
	assert.Equal(t, av.H264, tr.Codec)
	assert.Equal(t, "eng", tr.Language)
	assert.Equal(t, 352, tr.Video.PixelWidth)
	tr.Number = 1

	var out collector
	_, err = d.CreatePacketizer(tr, &out)
	require.NoError(t, err)
	for {
		status, err := d.Read(false)
		require.NoError(t, err)
		if status == av.Done {
			break
		}
	}
	assert.Equal(t, 100, d.Progress())

	require.Len(t, out.blocks, 3)
	assert.True(t, out.blocks[0].IsKeyFrame)
	assert.False(t, out.blocks[1].IsKeyFrame)
	assert.Equal(t, 80*time.Millisecond, out.blocks[2].Time)
	assert.Equal(t, 40*time.Millisecond, out.blocks[2].Duration)
	assert.Equal(t, []byte{0, 0, 0, 3, 0x41, 0x9b, 0x01}, out.blocks[2].Frames[0])
}
