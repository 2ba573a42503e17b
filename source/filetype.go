package source

import (
	"github.com/vishalkuo/bimap"
)

// FileType identifies the container a source file was recognized as.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeAAC
	FileTypeAC3
	FileTypeAVCES
	FileTypeAVI
	FileTypeDirac
	FileTypeDTS
	FileTypeFLAC
	FileTypeIVF
	FileTypeMatroska
	FileTypeMP3
	FileTypeMPEGES
	FileTypeMPEGPS
	FileTypeMPEGTS
	FileTypeOGM
	FileTypePGSSUP
	FileTypeQTMP4
	FileTypeReal
	FileTypeSRT
	FileTypeSSA
	FileTypeTrueHD
	FileTypeTTA
	FileTypeUSF
	FileTypeVC1
	FileTypeVobBtn
	FileTypeVobSub
	FileTypeWAV
	FileTypeWavPack
)

// containers maps the container names readers report to file types.
var containers = bimap.NewBiMapFromMap(map[string]FileType{
	"AAC":                          FileTypeAAC,
	"AC3":                          FileTypeAC3,
	"AVC/h.264":                    FileTypeAVCES,
	"AVI":                          FileTypeAVI,
	"Dirac":                        FileTypeDirac,
	"DTS":                          FileTypeDTS,
	"FLAC":                         FileTypeFLAC,
	"IVF (VP8/VP9/AV1)":            FileTypeIVF,
	"Matroska":                     FileTypeMatroska,
	"MP2/MP3":                      FileTypeMP3,
	"MPEG video elementary stream": FileTypeMPEGES,
	"MPEG program stream":          FileTypeMPEGPS,
	"MPEG transport stream":        FileTypeMPEGTS,
	"Ogg/OGM":                      FileTypeOGM,
	"PGSSUP":                       FileTypePGSSUP,
	"QuickTime/MP4":                FileTypeQTMP4,
	"RealMedia":                    FileTypeReal,
	"SRT subtitles":                FileTypeSRT,
	"SSA/ASS subtitles":            FileTypeSSA,
	"TrueHD":                       FileTypeTrueHD,
	"TTA":                          FileTypeTTA,
	"USF subtitles":                FileTypeUSF,
	"VC1 elementary stream":        FileTypeVC1,
	"VobBtn":                       FileTypeVobBtn,
	"VobSub":                       FileTypeVobSub,
	"WAV":                          FileTypeWAV,
	"WAVPACK":                      FileTypeWavPack,
})

// TypeOf returns the file type for a container name, FileTypeUnknown for
// names it does not know.
func TypeOf(container string) FileType {
	if t, ok := containers.Get(container); ok {
		return t
	}
	return FileTypeUnknown
}

// ContainerName is the inverse of TypeOf.
func ContainerName(t FileType) string {
	if name, ok := containers.GetInverse(t); ok {
		return name
	}
	return ""
}

func (self FileType) String() string {
	if name := ContainerName(self); name != "" {
		return name
	}
	return "unknown"
}
