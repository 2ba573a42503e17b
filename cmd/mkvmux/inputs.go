package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/deepch/mkvmux/av"
	"github.com/deepch/mkvmux/source"
)

// buildArena turns the positional arguments into the input tree. "+name"
// appends a file to the previous top-level file and "@name" adds a part to
// the file named before it.
func buildArena(args []string) (*source.Arena, error) {
	arena := &source.Arena{}
	last, prev := source.None, source.None
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "+"):
			if last == source.None {
				return nil, errors.Errorf("%s: nothing to append to", arg)
			}
			i, err := arena.Append(last, arg[1:])
			if err != nil {
				return nil, err
			}
			prev = i
		case strings.HasPrefix(arg, "@"):
			if prev == source.None {
				return nil, errors.Errorf("%s: no file to add a part to", arg)
			}
			if _, err := arena.AddAdditionalParts(prev, []string{arg[1:]}); err != nil {
				return nil, err
			}
		case arg == "":
			return nil, errors.New("empty file name")
		default:
			last = arena.Add(arg)
			prev = last
		}
	}
	if last == source.None {
		return nil, errors.New("no input files")
	}
	return arena, nil
}

// trackFlags collects the per-track flags, each given as NUMBER:VALUE.
type trackFlags struct {
	languages []string
	names     []string
	stereo    []string
	defaults  []string
	forced    []string
}

func splitTrackArg(s string) (uint64, string, error) {
	num, val, ok := strings.Cut(s, ":")
	if !ok {
		return 0, "", errors.Errorf("%q: expected NUMBER:VALUE", s)
	}
	n, err := strconv.ParseUint(num, 10, 64)
	if err != nil || n == 0 {
		return 0, "", errors.Errorf("%q: invalid track number", s)
	}
	return n, val, nil
}

func (self *trackFlags) options() (map[uint64]av.TrackOptions, error) {
	out := map[uint64]av.TrackOptions{}
	set := func(args []string, fn func(o *av.TrackOptions, v string) error) error {
		for _, a := range args {
			n, v, err := splitTrackArg(a)
			if err != nil {
				return err
			}
			o := out[n]
			if err = fn(&o, v); err != nil {
				return errors.Wrapf(err, "track %d", n)
			}
			out[n] = o
		}
		return nil
	}
	flag := func(v string) (*bool, error) {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, errors.Errorf("%q is not a boolean", v)
		}
		return &b, nil
	}

	err := set(self.languages, func(o *av.TrackOptions, v string) error { o.Language = v; return nil })
	if err == nil {
		err = set(self.names, func(o *av.TrackOptions, v string) error { o.Name = v; return nil })
	}
	if err == nil {
		err = set(self.stereo, func(o *av.TrackOptions, v string) error { o.StereoMode = v; return nil })
	}
	if err == nil {
		err = set(self.defaults, func(o *av.TrackOptions, v string) (err error) { o.Default, err = flag(v); return })
	}
	if err == nil {
		err = set(self.forced, func(o *av.TrackOptions, v string) (err error) { o.Forced, err = flag(v); return })
	}
	return out, err
}
