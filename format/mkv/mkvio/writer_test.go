package mkvio

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/at-wat/ebml-go"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4/seekablebuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deepch/mkvmux/av"
)

func TestVint(t *testing.T) {
	for _, tc := range []struct {
		v   uint64
		n   int
		enc []byte
	}{
		{0, 1, []byte{0x80}},
		{1, 1, []byte{0x81}},
		{126, 1, []byte{0xfe}},
		{127, 2, []byte{0x40, 0x7f}},
		{0x3ffe, 2, []byte{0x7f, 0xfe}},
		{0x3fff, 3, []byte{0x20, 0x3f, 0xff}},
	} {
		assert.Equal(t, tc.n, VintLen(tc.v), "len of %d", tc.v)
		b, err := EncodeSize(tc.v)
		require.NoError(t, err)
		assert.Equal(t, tc.enc, b)

		v, n, unknown, err := DecodeVint(b)
		require.NoError(t, err)
		assert.Equal(t, tc.v, v)
		assert.Equal(t, tc.n, n)
		assert.False(t, unknown)
	}

	_, err := EncodeVint(127, 1)
	assert.Error(t, err)

	_, _, unknown, err := DecodeVint(UnknownSizeBytes(8))
	require.NoError(t, err)
	assert.True(t, unknown)
	_, _, unknown, err = DecodeVint([]byte{0xff})
	require.NoError(t, err)
	assert.True(t, unknown)

	_, _, _, err = DecodeVint([]byte{0x00, 0x01})
	assert.Error(t, err)
}

func TestEncodeID(t *testing.T) {
	assert.Equal(t, []byte{0xec}, EncodeID(ElementVoid.ID))
	assert.Equal(t, []byte{0x42, 0x86}, EncodeID(ElementEBMLVersion.ID))
	assert.Equal(t, []byte{0x2a, 0xd7, 0xb1}, EncodeID(ElementTimecodeScale.ID))
	assert.Equal(t, []byte{0x1a, 0x45, 0xdf, 0xa3}, EncodeID(ElementEBML.ID))
}

func writeSample(t *testing.T, w *Writer, crc bool) {
	require.NoError(t, w.StartMaster(ElementEBML.ID, MasterOptions{}))
	require.NoError(t, w.WriteUint(ElementEBMLVersion.ID, 1))
	require.NoError(t, w.WriteString(ElementDocType.ID, "matroska"))
	require.NoError(t, w.EndMaster())

	require.NoError(t, w.StartMaster(ElementSegment.ID, MasterOptions{}))
	require.NoError(t, w.StartMaster(ElementInfo.ID, MasterOptions{CRC: crc}))
	require.NoError(t, w.WriteUint(ElementTimecodeScale.ID, 1000000))
	require.NoError(t, w.WriteFloat(ElementDuration.ID, 1234.5))
	require.NoError(t, w.WriteUTF8(ElementTitle.ID, "títle"))
	require.NoError(t, w.EndMaster())
	require.NoError(t, w.StartMaster(ElementCluster.ID, MasterOptions{}))
	require.NoError(t, w.WriteUint(ElementTimecode.ID, 0))
	require.NoError(t, w.WriteBinary(ElementSimpleBlock.ID, []byte{0x81, 0x00, 0x00, 0x80, 1, 2, 3}))
	require.NoError(t, w.StartMaster(ElementBlockGroup.ID, MasterOptions{}))
	require.NoError(t, w.WriteBinary(ElementBlock.ID, []byte{0x81, 0x00, 0x28, 0x00, 4}))
	require.NoError(t, w.WriteInt(ElementReferenceBlock.ID, -40))
	require.NoError(t, w.EndMaster())
	require.NoError(t, w.EndMaster())
	require.NoError(t, w.EndMaster())
	require.NoError(t, w.Close())
}

func TestRoundTrip(t *testing.T) {
	for _, crc := range []bool{false, true} {
		var buf seekablebuffer.Buffer
		writeSample(t, NewWriter(&buf), crc)

		els, err := InitDocument(bytes.NewReader(buf.Bytes())).ParseTree()
		require.NoError(t, err)
		require.Len(t, els, 2)

		seg := els[1]
		assert.Equal(t, ElementSegment.ID, seg.ID)
		assert.Equal(t, uint64(1000000), seg.Find(ElementInfo.ID, ElementTimecodeScale.ID).Uint())
		assert.Equal(t, 1234.5, seg.Find(ElementInfo.ID, ElementDuration.ID).Float())
		assert.Equal(t, "títle", seg.Find(ElementInfo.ID, ElementTitle.ID).String())
		assert.Equal(t, int64(-40), seg.Find(ElementCluster.ID, ElementBlockGroup.ID, ElementReferenceBlock.ID).Int())

		var out seekablebuffer.Buffer
		w := NewWriter(&out)
		for _, el := range els {
			require.NoError(t, w.WriteElement(el))
		}
		assert.Equal(t, buf.Bytes(), out.Bytes(), "crc=%v", crc)
	}
}

func TestCRC(t *testing.T) {
	var buf seekablebuffer.Buffer
	writeSample(t, NewWriter(&buf), true)

	els, err := InitDocument(bytes.NewReader(buf.Bytes())).ParseTree()
	require.NoError(t, err)
	info := els[1].Child(ElementInfo.ID)
	require.NotNil(t, info)
	require.Equal(t, ElementCRC32.ID, info.Children[0].ID)

	var payload bytes.Buffer
	w := NewWriter(&payload)
	for _, c := range info.Children[1:] {
		require.NoError(t, w.WriteElement(c))
	}
	assert.Equal(t, crc32.ChecksumIEEE(payload.Bytes()), binary.LittleEndian.Uint32(info.Children[0].Content))
}

func TestNonSeekable(t *testing.T) {
	var seekable seekablebuffer.Buffer
	writeSample(t, NewWriter(&seekable), false)

	var plain bytes.Buffer
	w := NewWriter(&plain)
	assert.False(t, w.Seekable())
	writeSample(t, w, false)

	assert.Equal(t, seekable.Bytes(), plain.Bytes())
}

func TestUnknownSize(t *testing.T) {
	var plain bytes.Buffer
	w := NewWriter(&plain)
	require.NoError(t, w.StartMaster(ElementSegment.ID, MasterOptions{Unknown: true}))
	require.NoError(t, w.StartMaster(ElementCluster.ID, MasterOptions{Unknown: true}))
	require.NoError(t, w.WriteUint(ElementTimecode.ID, 5))
	require.NoError(t, w.EndMaster())
	require.NoError(t, w.StartMaster(ElementCluster.ID, MasterOptions{Unknown: true}))
	require.NoError(t, w.WriteUint(ElementTimecode.ID, 6))
	require.NoError(t, w.EndMaster())
	require.NoError(t, w.EndMaster())

	els, err := InitDocument(bytes.NewReader(plain.Bytes())).ParseTree()
	require.NoError(t, err)
	require.Len(t, els, 1)
	assert.True(t, els[0].UnknownSize)
	clusters := els[0].All(ElementCluster.ID)
	require.Len(t, clusters, 2)
	assert.Equal(t, uint64(6), clusters[1].Child(ElementTimecode.ID).Uint())
}

func TestBufferLimit(t *testing.T) {
	var plain bytes.Buffer
	w := NewWriter(&plain)
	w.SetBufferLimit(16)
	require.NoError(t, w.StartMaster(ElementCluster.ID, MasterOptions{}))
	err := w.WriteBinary(ElementSimpleBlock.ID, make([]byte, 32))
	require.Error(t, err)
	assert.True(t, av.IsSizeBackpatchFailure(err))
}

func TestPatch(t *testing.T) {
	var buf seekablebuffer.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.StartMaster(ElementSegment.ID, MasterOptions{}))
	at := w.Pos()
	require.NoError(t, w.WriteVoid(20))
	require.NoError(t, w.WriteUint(ElementTimecode.ID, 1))
	void, err := VoidBytes(12)
	require.NoError(t, err)
	require.NoError(t, w.Patch(at, append([]byte{0xe7, 0x81, 0x07, 0xec, 0x83, 0, 0, 0}, void...)))
	require.NoError(t, w.EndMaster())

	els, err := InitDocument(bytes.NewReader(buf.Bytes())).ParseTree()
	require.NoError(t, err)
	kids := els[0].Children
	require.Len(t, kids, 4)
	assert.Equal(t, uint64(7), kids[0].Uint())
	assert.Equal(t, ElementVoid.ID, kids[1].ID)
	assert.Equal(t, ElementVoid.ID, kids[2].ID)
	assert.Equal(t, uint64(1), kids[3].Uint())

	var plain bytes.Buffer
	assert.Error(t, NewWriter(&plain).Patch(0, []byte{0}))
}

func TestVoidBytes(t *testing.T) {
	for _, n := range []int{2, 9, 128, 129, 130, 4096} {
		b, err := VoidBytes(n)
		require.NoError(t, err)
		require.Len(t, b, n)
		el, err := InitDocument(bytes.NewReader(b)).ParseElement()
		require.NoError(t, err)
		assert.Equal(t, ElementVoid.ID, el.ID)
	}
	_, err := VoidBytes(1)
	assert.Error(t, err)
}

type crossHeader struct {
	EBMLVersion uint64
	EBMLDocType string
}

type crossInfo struct {
	TimecodeScale uint64
	Duration      float64
	Title         string
}

type crossCluster struct {
	Timecode    uint64
	SimpleBlock []ebml.Block
}

type crossSegment struct {
	Info    crossInfo
	Cluster []crossCluster
}

type crossDoc struct {
	Header  crossHeader `ebml:"EBML"`
	Segment crossSegment
}

// the output must also be readable by an independent EBML implementation
func TestCrossParse(t *testing.T) {
	var buf seekablebuffer.Buffer
	writeSample(t, NewWriter(&buf), false)

	var doc crossDoc
	require.NoError(t, ebml.Unmarshal(bytes.NewReader(buf.Bytes()), &doc, ebml.WithIgnoreUnknown(true)))
	assert.Equal(t, "matroska", doc.Header.EBMLDocType)
	assert.Equal(t, uint64(1000000), doc.Segment.Info.TimecodeScale)
	assert.Equal(t, "títle", doc.Segment.Info.Title)
	require.Len(t, doc.Segment.Cluster, 1)
	require.Len(t, doc.Segment.Cluster[0].SimpleBlock, 1)
	blk := doc.Segment.Cluster[0].SimpleBlock[0]
	assert.Equal(t, uint64(1), blk.TrackNumber)
	assert.True(t, blk.Keyframe)
	assert.Equal(t, [][]byte{{1, 2, 3}}, blk.Data)
}
