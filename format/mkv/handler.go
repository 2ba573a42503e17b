package mkv

import (
	"bytes"
	"io"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/format/mkv/mkvio"
)

var DocTypes = []string{"matroska", "webm"}

// Probe accepts an EBML header announcing a Matroska or WebM document.
func Probe(b []byte) bool {
	doc := mkvio.InitDocument(bytes.NewReader(b))
	el, err := doc.ReadHeader()
	if err != nil || el.ID != mkvio.ElementEBML.ID || el.UnknownSize {
		return false
	}
	if doc.ReadBody(el) != nil {
		return false
	}
	return docTypeOK(stringOr(el, mkvio.ElementDocType.ID, mkvio.DocType))
}

func Handler(h *avutil.RegisterHandler) {
	h.Name = "Matroska"
	h.Ext = ".mkv"

	h.Probe = func(r io.ReadSeeker, size int64) bool {
		b, err := avutil.ReadPrefix(r, 4096)
		return err == nil && Probe(b)
	}

	h.Open = func(r io.ReadSeeker, size int64) (av.Reader, error) {
		return NewDemuxer(r, size), nil
	}
}
