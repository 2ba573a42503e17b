package codec

import (
	"time"

	"github.com/deepch/mkvmux/av"
)

// Matroska codec IDs.
const (
	IDAVC      = "V_MPEG4/ISO/AVC"
	IDHEVC     = "V_MPEGH/ISO/HEVC"
	IDVP8      = "V_VP8"
	IDVP9      = "V_VP9"
	IDAV1      = "V_AV1"
	IDDirac    = "V_DIRAC"
	IDAAC      = "A_AAC"
	IDOpus     = "A_OPUS"
	IDMP3      = "A_MPEG/L3"
	IDPCM      = "A_PCM/INT/LIT"
	IDPCMBE    = "A_PCM/INT/BIG"
	IDTextUTF8 = "S_TEXT/UTF8"
)

var ids = map[av.CodecType]string{
	av.H264:  IDAVC,
	av.H265:  IDHEVC,
	av.VP8:   IDVP8,
	av.VP9:   IDVP9,
	av.AV1:   IDAV1,
	av.DIRAC: IDDirac,
	av.AAC:   IDAAC,
	av.OPUS:  IDOpus,
	av.MP3:   IDMP3,
	av.PCM:   IDPCM,
	av.TEXT:  IDTextUTF8,
}

// ID returns the Matroska codec ID of typ, or "" when it has none.
func ID(typ av.CodecType) string {
	return ids[typ]
}

// FromID maps a Matroska codec ID back to a codec type. AAC profiles encoded
// in legacy IDs ("A_AAC/MPEG4/LC") map to AAC.
func FromID(id string) av.CodecType {
	for typ, s := range ids {
		if s == id {
			return typ
		}
	}
	switch {
	case len(id) > len(IDAAC) && id[:len(IDAAC)+1] == IDAAC+"/":
		return av.AAC
	case id == IDPCMBE:
		return av.PCM
	}
	return av.UNKNOWN
}

// Kind is the track kind implied by a Matroska codec ID prefix.
func Kind(id string) av.TrackKind {
	if len(id) < 2 || id[1] != '_' {
		return 0
	}
	switch id[0] {
	case 'V':
		return av.KindVideo
	case 'A':
		return av.KindAudio
	case 'S':
		return av.KindSubtitle
	case 'B':
		return av.KindButtons
	}
	return 0
}

func NewPCMTrack(id int64, sampleRate, channels, bitDepth int) *av.Track {
	t := av.NewTrack(id, av.KindAudio, av.PCM, IDPCM)
	t.Audio = &av.AudioParams{SampleRate: float64(sampleRate), Channels: channels, BitDepth: bitDepth}
	return t
}

// PCMPacketDuration is the play time of data for a PCM track.
func PCMPacketDuration(a *av.AudioParams, data []byte) time.Duration {
	if a == nil || a.SampleRate <= 0 || a.Channels <= 0 {
		return 0
	}
	bytesPerSample := a.BitDepth / 8
	if bytesPerSample == 0 {
		bytesPerSample = 2
	}
	samples := len(data) / (bytesPerSample * a.Channels)
	return time.Duration(float64(samples) * float64(time.Second) / a.SampleRate)
}
