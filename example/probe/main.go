package main

import (
	"log"
	"os"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/av/avutil"
	"github.com/deepch/mkvmux/format"
)

type printer struct {
	n map[int64]int
}

func (self *printer) Push(blk *av.Block) error {
	if blk.IsKeyFrame {
		self.n[blk.Track.ID] = 0
	}
	log.Println(blk.Track.ID, self.n[blk.Track.ID], blk.Time, blk.Duration, len(blk.Frames), blk.Size())
	self.n[blk.Track.ID]++
	return nil
}

func main() {
	if len(os.Args) < 2 {
		log.Fatalln("usage: probe FILE")
	}
	f, err := os.Open(os.Args[1])
	if err != nil {
		log.Fatalln(err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		log.Fatalln(err)
	}

	format.RegisterAll()
	h, r, tracks, err := avutil.DefaultHandlers.Identify(f, fi.Size())
	if err != nil {
		log.Fatalln(err)
	}
	log.Println(h.Name)

	p := &printer{n: map[int64]int{}}
	for i, t := range tracks {
		log.Println(t.ID, t.Kind, t.CodecID, t.Language)
		t.Number = uint64(i + 1)
		if _, err = r.CreatePacketizer(t, p); err != nil {
			log.Println(t.ID, err)
		}
	}
	for {
		status, err := r.Read(false)
		if err != nil {
			log.Println(err)
		}
		if status == av.Done {
			return
		}
	}
}
