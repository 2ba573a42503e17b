package mux

import (
	"github.com/sirupsen/logrus"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/source"
	"github.com/deepch/mkvmux/utils/logger"
)

// binding ties a track as the reader knows it to the output track its
// blocks are written to. For appended files local is a copy carrying the
// output number.
type binding struct {
	local  *av.Track
	output *av.Track
}

type input struct {
	src  source.Index
	name string
	// root is the file this one is appended to, nil for top-level files
	root *input
	next *input

	file    *source.MultiFile
	size    int64
	handler *avutil.RegisterHandler
	reader  av.Reader
	tracks  []*av.Track
	out     []binding
	log     logrus.FieldLogger

	skip bool
	done bool
}

func newInput(arena *source.Arena, i source.Index, root *input) *input {
	return &input{
		src:  i,
		name: arena.Get(i).Name,
		root: root,
		log:  logger.Or(nil),
	}
}

func (self *input) binding(id int64) *binding {
	for i := range self.out {
		if self.out[i].local.ID == id {
			return &self.out[i]
		}
	}
	return nil
}
