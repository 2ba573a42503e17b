package mkvio

const (
	ElementType        uint8 = 0x0
	ElementTypeUnknown uint8 = 0x0
	ElementTypeMaster  uint8 = 0x1
	ElementTypeUint    uint8 = 0x2
	ElementTypeInt     uint8 = 0x3
	ElementTypeString  uint8 = 0x4
	ElementTypeUnicode uint8 = 0x5
	ElementTypeBinary  uint8 = 0x6
	ElementTypeFloat   uint8 = 0x7
	ElementTypeDate    uint8 = 0x8
)

var (
	ElementUnknown                 = ElementRegister{0x0, ElementTypeUnknown, "Unknown"}
	ElementEBML                    = ElementRegister{0x1a45dfa3, ElementTypeMaster, "EBML"}
	ElementEBMLVersion             = ElementRegister{0x4286, ElementTypeUint, "EBMLVersion"}
	ElementEBMLReadVersion         = ElementRegister{0x42f7, ElementTypeUint, "EBMLReadVersion"}
	ElementEBMLMaxIDLength         = ElementRegister{0x42f2, ElementTypeUint, "EBMLMaxIDLength"}
	ElementEBMLMaxSizeLength       = ElementRegister{0x42f3, ElementTypeUint, "EBMLMaxSizeLength"}
	ElementDocType                 = ElementRegister{0x4282, ElementTypeString, "DocType"}
	ElementDocTypeVersion          = ElementRegister{0x4287, ElementTypeUint, "DocTypeVersion"}
	ElementDocTypeReadVersion      = ElementRegister{0x4285, ElementTypeUint, "DocTypeReadVersion"}
	ElementVoid                    = ElementRegister{0xec, ElementTypeBinary, "Void"}
	ElementCRC32                   = ElementRegister{0xbf, ElementTypeBinary, "CRC-32"}
	ElementSegment                 = ElementRegister{0x18538067, ElementTypeMaster, "Segment"}
	ElementSeekHead                = ElementRegister{0x114d9b74, ElementTypeMaster, "SeekHead"}
	ElementSeek                    = ElementRegister{0x4dbb, ElementTypeMaster, "Seek"}
	ElementSeekID                  = ElementRegister{0x53ab, ElementTypeBinary, "SeekID"}
	ElementSeekPosition            = ElementRegister{0x53ac, ElementTypeUint, "SeekPosition"}
	ElementInfo                    = ElementRegister{0x1549a966, ElementTypeMaster, "Info"}
	ElementSegmentUID              = ElementRegister{0x73a4, ElementTypeBinary, "SegmentUID"}
	ElementSegmentFilename         = ElementRegister{0x7384, ElementTypeUnicode, "SegmentFilename"}
	ElementPrevUID                 = ElementRegister{0x3cb923, ElementTypeBinary, "PrevUID"}
	ElementPrevFilename            = ElementRegister{0x3c83ab, ElementTypeUnicode, "PrevFilename"}
	ElementNextUID                 = ElementRegister{0x3eb923, ElementTypeBinary, "NextUID"}
	ElementNextFilename            = ElementRegister{0x3e83bb, ElementTypeUnicode, "NextFilename"}
	ElementSegmentFamily           = ElementRegister{0x4444, ElementTypeBinary, "SegmentFamily"}
	ElementTimecodeScale           = ElementRegister{0x2ad7b1, ElementTypeUint, "TimecodeScale"}
	ElementDuration                = ElementRegister{0x4489, ElementTypeFloat, "Duration"}
	ElementDateUTC                 = ElementRegister{0x4461, ElementTypeDate, "DateUTC"}
	ElementTitle                   = ElementRegister{0x7ba9, ElementTypeUnicode, "Title"}
	ElementMuxingApp               = ElementRegister{0x4d80, ElementTypeUnicode, "MuxingApp"}
	ElementWritingApp              = ElementRegister{0x5741, ElementTypeUnicode, "WritingApp"}
	ElementCluster                 = ElementRegister{0x1f43b675, ElementTypeMaster, "Cluster"}
	ElementTimecode                = ElementRegister{0xe7, ElementTypeUint, "Timecode"}
	ElementPosition                = ElementRegister{0xa7, ElementTypeUint, "Position"}
	ElementPrevSize                = ElementRegister{0xab, ElementTypeUint, "PrevSize"}
	ElementSimpleBlock             = ElementRegister{0xa3, ElementTypeBinary, "SimpleBlock"}
	ElementBlockGroup              = ElementRegister{0xa0, ElementTypeMaster, "BlockGroup"}
	ElementBlock                   = ElementRegister{0xa1, ElementTypeBinary, "Block"}
	ElementBlockAdditions          = ElementRegister{0x75a1, ElementTypeMaster, "BlockAdditions"}
	ElementBlockMore               = ElementRegister{0xa6, ElementTypeMaster, "BlockMore"}
	ElementBlockAddID              = ElementRegister{0xee, ElementTypeUint, "BlockAddID"}
	ElementBlockAdditional         = ElementRegister{0xa5, ElementTypeBinary, "BlockAdditional"}
	ElementBlockDuration           = ElementRegister{0x9b, ElementTypeUint, "BlockDuration"}
	ElementReferencePriority       = ElementRegister{0xfa, ElementTypeUint, "ReferencePriority"}
	ElementReferenceBlock          = ElementRegister{0xfb, ElementTypeInt, "ReferenceBlock"}
	ElementCodecState              = ElementRegister{0xa4, ElementTypeBinary, "CodecState"}
	ElementDiscardPadding          = ElementRegister{0x75a2, ElementTypeInt, "DiscardPadding"}
	ElementTracks                  = ElementRegister{0x1654ae6b, ElementTypeMaster, "Tracks"}
	ElementTrackEntry              = ElementRegister{0xae, ElementTypeMaster, "TrackEntry"}
	ElementTrackNumber             = ElementRegister{0xd7, ElementTypeUint, "TrackNumber"}
	ElementTrackUID                = ElementRegister{0x73c5, ElementTypeUint, "TrackUID"}
	ElementTrackType               = ElementRegister{0x83, ElementTypeUint, "TrackType"}
	ElementFlagEnabled             = ElementRegister{0xb9, ElementTypeUint, "FlagEnabled"}
	ElementFlagDefault             = ElementRegister{0x88, ElementTypeUint, "FlagDefault"}
	ElementFlagForced              = ElementRegister{0x55aa, ElementTypeUint, "FlagForced"}
	ElementFlagLacing              = ElementRegister{0x9c, ElementTypeUint, "FlagLacing"}
	ElementMinCache                = ElementRegister{0x6de7, ElementTypeUint, "MinCache"}
	ElementMaxCache                = ElementRegister{0x6df8, ElementTypeUint, "MaxCache"}
	ElementDefaultDuration         = ElementRegister{0x23e383, ElementTypeUint, "DefaultDuration"}
	ElementMaxBlockAdditionID      = ElementRegister{0x55ee, ElementTypeUint, "MaxBlockAdditionID"}
	ElementName                    = ElementRegister{0x536e, ElementTypeUnicode, "Name"}
	ElementLanguage                = ElementRegister{0x22b59c, ElementTypeString, "Language"}
	ElementCodecID                 = ElementRegister{0x86, ElementTypeString, "CodecID"}
	ElementCodecPrivate            = ElementRegister{0x63a2, ElementTypeBinary, "CodecPrivate"}
	ElementCodecName               = ElementRegister{0x258688, ElementTypeUnicode, "CodecName"}
	ElementAttachmentLink          = ElementRegister{0x7446, ElementTypeUint, "AttachmentLink"}
	ElementCodecDecodeAll          = ElementRegister{0xaa, ElementTypeUint, "CodecDecodeAll"}
	ElementTrackOverlay            = ElementRegister{0x6fab, ElementTypeUint, "TrackOverlay"}
	ElementCodecDelay              = ElementRegister{0x56aa, ElementTypeUint, "CodecDelay"}
	ElementSeekPreRoll             = ElementRegister{0x56bb, ElementTypeUint, "SeekPreRoll"}
	ElementVideo                   = ElementRegister{0xe0, ElementTypeMaster, "Video"}
	ElementFlagInterlaced          = ElementRegister{0x9a, ElementTypeUint, "FlagInterlaced"}
	ElementStereoMode              = ElementRegister{0x53b8, ElementTypeUint, "StereoMode"}
	ElementAlphaMode               = ElementRegister{0x53c0, ElementTypeUint, "AlphaMode"}
	ElementPixelWidth              = ElementRegister{0xb0, ElementTypeUint, "PixelWidth"}
	ElementPixelHeight             = ElementRegister{0xba, ElementTypeUint, "PixelHeight"}
	ElementPixelCropBottom         = ElementRegister{0x54aa, ElementTypeUint, "PixelCropBottom"}
	ElementPixelCropTop            = ElementRegister{0x54bb, ElementTypeUint, "PixelCropTop"}
	ElementPixelCropLeft           = ElementRegister{0x54cc, ElementTypeUint, "PixelCropLeft"}
	ElementPixelCropRight          = ElementRegister{0x54dd, ElementTypeUint, "PixelCropRight"}
	ElementDisplayWidth            = ElementRegister{0x54b0, ElementTypeUint, "DisplayWidth"}
	ElementDisplayHeight           = ElementRegister{0x54ba, ElementTypeUint, "DisplayHeight"}
	ElementDisplayUint             = ElementRegister{0x54b2, ElementTypeUint, "DisplayUint"}
	ElementAspectRatioType         = ElementRegister{0x54b3, ElementTypeUint, "AspectRatioType"}
	ElementColourSpace             = ElementRegister{0x2eb524, ElementTypeBinary, "ColourSpace"}
	ElementAudio                   = ElementRegister{0xe1, ElementTypeMaster, "Audio"}
	ElementSamplingFrequency       = ElementRegister{0xb5, ElementTypeFloat, "SamplingFrequency"}
	ElementOutputSamplingFrequency = ElementRegister{0x78b5, ElementTypeFloat, "OutputSamplingFrequency"}
	ElementChannels                = ElementRegister{0x9f, ElementTypeUint, "Channels"}
	ElementBitDepth                = ElementRegister{0x6264, ElementTypeUint, "BitDepth"}
	ElementTrackOperation          = ElementRegister{0xe2, ElementTypeMaster, "TrackOperation"}
	ElementContentEncodings        = ElementRegister{0x6d80, ElementTypeMaster, "ContentEncodings"}
	ElementContentEncoding         = ElementRegister{0x6240, ElementTypeMaster, "ContentEncoding"}
	ElementContentEncodingOrder    = ElementRegister{0x5031, ElementTypeUint, "ContentEncodingOrder"}
	ElementContentEncodingScope    = ElementRegister{0x5032, ElementTypeUint, "ContentEncodingScope"}
	ElementContentEncodingType     = ElementRegister{0x5033, ElementTypeUint, "ContentEncodingType"}
	ElementContentCompression      = ElementRegister{0x5034, ElementTypeMaster, "ContentCompression"}
	ElementContentCompAlgo         = ElementRegister{0x4254, ElementTypeUint, "ContentCompAlgo"}
	ElementContentCompSettings     = ElementRegister{0x4255, ElementTypeBinary, "ContentCompSettings"}
	ElementContentEncryption       = ElementRegister{0x5035, ElementTypeMaster, "ContentEncryption"}
	ElementContentEncAlgo          = ElementRegister{0x47e1, ElementTypeUint, "ContentEncAlgo"}
	ElementContentEncKeyID         = ElementRegister{0x47e2, ElementTypeUint, "ContentEncKeyID"}
	ElementCues                    = ElementRegister{0x1c53bb6b, ElementTypeMaster, "Cues"}
	ElementCuePoint                = ElementRegister{0xbb, ElementTypeMaster, "CuePoint"}
	ElementCueTime                 = ElementRegister{0xb3, ElementTypeUint, "CueTime"}
	ElementCueTrackPositions       = ElementRegister{0xb7, ElementTypeMaster, "CueTrackPositions"}
	ElementCueTrack                = ElementRegister{0xf7, ElementTypeUint, "CueTrack"}
	ElementCueClusterPosition      = ElementRegister{0xf1, ElementTypeUint, "CueClusterPosition"}
	ElementCueRelativePosition     = ElementRegister{0xf0, ElementTypeUint, "CueRelativePosition"}
	ElementCueDuration             = ElementRegister{0xb2, ElementTypeUint, "CueDuration"}
	ElementCueBlockNumber          = ElementRegister{0x5378, ElementTypeUint, "CueBlockNumber"}
	ElementAttachments             = ElementRegister{0x1941a469, ElementTypeMaster, "Attachments"}
	ElementAttachedFile            = ElementRegister{0x61a7, ElementTypeMaster, "AttachedFile"}
	ElementFileDescription         = ElementRegister{0x467e, ElementTypeUnicode, "FileDescription"}
	ElementFileName                = ElementRegister{0x466e, ElementTypeUnicode, "FileName"}
	ElementFileMimeType            = ElementRegister{0x6460, ElementTypeString, "FileMimeType"}
	ElementFileData                = ElementRegister{0x465c, ElementTypeBinary, "FileData"}
	ElementFileUID                 = ElementRegister{0x46ae, ElementTypeUint, "FileUID"}
	ElementChapters                = ElementRegister{0x1043a770, ElementTypeMaster, "Chapters"}
	ElementEditionEntry            = ElementRegister{0x45b9, ElementTypeMaster, "EditionEntry"}
	ElementChapterAtom             = ElementRegister{0xb6, ElementTypeMaster, "ChapterAtom"}
	ElementChapterUID              = ElementRegister{0x73c4, ElementTypeUint, "ChapterUID"}
	ElementChapterTimeStart        = ElementRegister{0x91, ElementTypeUint, "ChapterTimeStart"}
	ElementChapterTimeEnd          = ElementRegister{0x92, ElementTypeUint, "ChapterTimeEnd"}
	ElementChapterDisplay          = ElementRegister{0x80, ElementTypeMaster, "ChapterDisplay"}
	ElementChapString              = ElementRegister{0x85, ElementTypeUnicode, "ChapString"}
	ElementChapLanguage            = ElementRegister{0x437c, ElementTypeString, "ChapLanguage"}

	ElementTags            = ElementRegister{0x1254c367, ElementTypeMaster, "Tags"}
	ElementTag             = ElementRegister{0x7373, ElementTypeMaster, "Tag"}
	ElementTargets         = ElementRegister{0x63c0, ElementTypeMaster, "Targets"}
	ElementTargetTypeValue = ElementRegister{0x68ca, ElementTypeUint, "TargetTypeValue"}
	ElementTargetType      = ElementRegister{0x63ca, ElementTypeString, "TargetType"}
	ElementTagTrackUID     = ElementRegister{0x63c5, ElementTypeUint, "TagTrackUID"}
	ElementSimpleTag       = ElementRegister{0x67c8, ElementTypeMaster, "SimpleTag"}
	ElementTagName         = ElementRegister{0x45a3, ElementTypeUnicode, "TagName"}
	ElementTagLanguage     = ElementRegister{0x447a, ElementTypeString, "TagLanguage"}
	ElementTagDefault      = ElementRegister{0x4484, ElementTypeUint, "TagDefault"}
	ElementTagString       = ElementRegister{0x4487, ElementTypeUnicode, "TagString"}
	ElementTagBinary       = ElementRegister{0x4485, ElementTypeBinary, "TagBinary"}
)

var registers = map[uint32]ElementRegister{}

func init() {
	for _, reg := range []ElementRegister{
		ElementEBML, ElementEBMLVersion, ElementEBMLReadVersion, ElementEBMLMaxIDLength,
		ElementEBMLMaxSizeLength, ElementDocType, ElementDocTypeVersion, ElementDocTypeReadVersion,
		ElementVoid, ElementCRC32,
		ElementSegment, ElementSeekHead, ElementSeek, ElementSeekID, ElementSeekPosition,
		ElementInfo, ElementSegmentUID, ElementSegmentFilename, ElementPrevUID, ElementPrevFilename,
		ElementNextUID, ElementNextFilename, ElementSegmentFamily, ElementTimecodeScale,
		ElementDuration, ElementDateUTC, ElementTitle, ElementMuxingApp, ElementWritingApp,
		ElementCluster, ElementTimecode, ElementPosition, ElementPrevSize, ElementSimpleBlock,
		ElementBlockGroup, ElementBlock, ElementBlockAdditions, ElementBlockMore, ElementBlockAddID,
		ElementBlockAdditional, ElementBlockDuration, ElementReferencePriority, ElementReferenceBlock,
		ElementCodecState, ElementDiscardPadding,
		ElementTracks, ElementTrackEntry, ElementTrackNumber, ElementTrackUID, ElementTrackType,
		ElementFlagEnabled, ElementFlagDefault, ElementFlagForced, ElementFlagLacing,
		ElementMinCache, ElementMaxCache, ElementDefaultDuration, ElementMaxBlockAdditionID,
		ElementName, ElementLanguage, ElementCodecID, ElementCodecPrivate, ElementCodecName,
		ElementAttachmentLink, ElementCodecDecodeAll, ElementTrackOverlay, ElementCodecDelay,
		ElementSeekPreRoll, ElementVideo, ElementFlagInterlaced, ElementStereoMode, ElementAlphaMode,
		ElementPixelWidth, ElementPixelHeight, ElementPixelCropBottom, ElementPixelCropTop,
		ElementPixelCropLeft, ElementPixelCropRight, ElementDisplayWidth, ElementDisplayHeight,
		ElementDisplayUint, ElementAspectRatioType, ElementColourSpace,
		ElementAudio, ElementSamplingFrequency, ElementOutputSamplingFrequency, ElementChannels,
		ElementBitDepth, ElementTrackOperation,
		ElementContentEncodings, ElementContentEncoding, ElementContentEncodingOrder,
		ElementContentEncodingScope, ElementContentEncodingType, ElementContentCompression,
		ElementContentCompAlgo, ElementContentCompSettings, ElementContentEncryption,
		ElementContentEncAlgo, ElementContentEncKeyID,
		ElementCues, ElementCuePoint, ElementCueTime, ElementCueTrackPositions, ElementCueTrack,
		ElementCueClusterPosition, ElementCueRelativePosition, ElementCueDuration,
		ElementCueBlockNumber,
		ElementAttachments, ElementAttachedFile, ElementFileDescription, ElementFileName,
		ElementFileMimeType, ElementFileData, ElementFileUID,
		ElementChapters, ElementEditionEntry, ElementChapterAtom, ElementChapterUID,
		ElementChapterTimeStart, ElementChapterTimeEnd, ElementChapterDisplay, ElementChapString,
		ElementChapLanguage,
		ElementTags, ElementTag, ElementTargets, ElementTargetTypeValue, ElementTargetType,
		ElementTagTrackUID, ElementSimpleTag, ElementTagName, ElementTagLanguage, ElementTagDefault,
		ElementTagString, ElementTagBinary,
	} {
		registers[reg.ID] = reg
	}
}

// GetElementRegister returns the infos concerning the provided element ID.
// Unknown IDs keep their ID but are typed as binary so they can be skipped.
func GetElementRegister(id uint32) ElementRegister {
	if reg, ok := registers[id]; ok {
		return reg
	}
	return ElementRegister{id, ElementTypeUnknown, "Unknown"}
}
