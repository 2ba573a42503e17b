package av

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/text/language"

	"github.com/deepch/mkvmux/av/stereo"
)

type VideoParams struct {
	PixelWidth    int
	PixelHeight   int
	DisplayWidth  int
	DisplayHeight int
	Interlaced    bool
}

type AudioParams struct {
	SampleRate float64
	Channels   int
	BitDepth   int
}

// Track is the per-track metadata. Readers create tracks in Identify; once the
// owning TrackTable is frozen a track is read-only.
type Track struct {
	// ID is the reader-local track id.
	ID int64
	// Number and UID are assigned by TrackTable.Add.
	Number uint64
	UID    uint64

	Kind         TrackKind
	Codec        CodecType
	CodecID      string
	CodecPrivate []byte
	Name         string
	Language     string

	Default bool
	Forced  bool
	Enabled bool

	StereoMode    stereo.Mode
	HasStereoMode bool

	DefaultDuration time.Duration
	CodecDelay      time.Duration
	SeekPreRoll     time.Duration

	// Reordered is set for codecs whose presentation order differs from
	// decode order.
	Reordered bool

	Video *VideoParams
	Audio *AudioParams
}

func NewTrack(id int64, kind TrackKind, codec CodecType, codecID string) *Track {
	return &Track{
		ID:       id,
		Kind:     kind,
		Codec:    codec,
		CodecID:  codecID,
		Language: "und",
		Default:  true,
		Enabled:  true,
	}
}

func (self *Track) Validate(reg *stereo.Registry) error {
	if !self.Kind.Valid() {
		return errors.Errorf("track %d: invalid kind %d", self.ID, self.Kind)
	}
	if self.CodecID == "" {
		return errors.Errorf("track %d: empty codec id", self.ID)
	}
	if self.HasStereoMode {
		if self.Kind != KindVideo {
			return errors.Errorf("track %d: stereo mode on a %s track", self.ID, self.Kind)
		}
		if !reg.Valid(int(self.StereoMode)) {
			return errors.Errorf("track %d: invalid stereo mode %d", self.ID, self.StereoMode)
		}
	}
	if self.Kind == KindAudio && self.Audio == nil {
		return errors.Errorf("track %d: audio track without audio parameters", self.ID)
	}
	return nil
}

// TrackOptions carries user supplied per-track settings.
type TrackOptions struct {
	Name       string
	Language   string
	StereoMode string
	Default    *bool
	Forced     *bool
	Enabled    *bool
}

// Apply validates the options and copies them onto t. Nothing is changed
// when an option is invalid.
func (self TrackOptions) Apply(reg *stereo.Registry, t *Track) error {
	lang := t.Language
	if self.Language != "" {
		var err error
		if lang, err = ParseLanguage(self.Language); err != nil {
			return err
		}
	}
	mode, hasMode := t.StereoMode, t.HasStereoMode
	if self.StereoMode != "" {
		if t.Kind != KindVideo {
			return errors.Errorf("stereo mode %q given for %s track %d", self.StereoMode, t.Kind, t.ID)
		}
		if mode = reg.Parse(self.StereoMode); mode == stereo.Invalid {
			return errors.Errorf("invalid stereo mode %q, valid modes are: %s", self.StereoMode, reg.Keywords())
		}
		hasMode = true
	}

	t.Language = lang
	t.StereoMode, t.HasStereoMode = mode, hasMode
	if self.Name != "" {
		t.Name = self.Name
	}
	if self.Default != nil {
		t.Default = *self.Default
	}
	if self.Forced != nil {
		t.Forced = *self.Forced
	}
	if self.Enabled != nil {
		t.Enabled = *self.Enabled
	}
	return nil
}

// bibliographic maps the ISO 639-2/T codes that have a distinct /B form.
var bibliographic = map[string]string{
	"bod": "tib",
	"ces": "cze",
	"cym": "wel",
	"deu": "ger",
	"ell": "gre",
	"eus": "baq",
	"fas": "per",
	"fra": "fre",
	"hye": "arm",
	"isl": "ice",
	"kat": "geo",
	"mkd": "mac",
	"mri": "mao",
	"msa": "may",
	"mya": "bur",
	"nld": "dut",
	"ron": "rum",
	"slk": "slo",
	"sqi": "alb",
	"zho": "chi",
}

func isBibliographic(s string) bool {
	for _, b := range bibliographic {
		if s == b {
			return true
		}
	}
	return false
}

// ParseLanguage accepts BCP 47 or ISO 639 codes and returns the ISO 639-2/B
// code Matroska expects.
func ParseLanguage(s string) (string, error) {
	if s == "und" || isBibliographic(s) {
		return s, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", errors.Wrapf(err, "invalid language %q", s)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", errors.Errorf("invalid language %q", s)
	}
	code := base.ISO3()
	if b, ok := bibliographic[code]; ok {
		code = b
	}
	return code, nil
}

// TrackTable owns the tracks of one output file. Tracks are added while
// inputs are identified; Freeze makes the table read-only for the mux run.
type TrackTable struct {
	tracks []*Track
	frozen bool
}

func (self *TrackTable) Add(t *Track) (number uint64, err error) {
	if self.frozen {
		err = errors.New("track table is frozen")
		return
	}
	number = uint64(len(self.tracks) + 1)
	t.Number = number
	if t.UID == 0 {
		t.UID = newUID()
	}
	self.tracks = append(self.tracks, t)
	return
}

func (self *TrackTable) Freeze() {
	self.frozen = true
}

func (self *TrackTable) Frozen() bool {
	return self.frozen
}

func (self *TrackTable) Len() int {
	return len(self.tracks)
}

func (self *TrackTable) Tracks() []*Track {
	return append([]*Track(nil), self.tracks...)
}

func (self *TrackTable) Get(number uint64) *Track {
	if number == 0 || number > uint64(len(self.tracks)) {
		return nil
	}
	return self.tracks[number-1]
}

func newUID() uint64 {
	for {
		id := uuid.New()
		if v := binary.BigEndian.Uint64(id[:8]); v != 0 {
			return v
		}
	}
}
