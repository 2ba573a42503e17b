package mkvio

// Version of the EBML writer, reported in MuxingApp.
const (
	Version     = 0x010203
	CodeVersion = "1.2.3"
)

const (
	EBMLVersion        = 1
	EBMLMaxIDLength    = 4
	EBMLMaxSizeLength  = 8
	DocType            = "matroska"
	DocTypeVersion     = 4
	DocTypeReadVersion = 2
)
