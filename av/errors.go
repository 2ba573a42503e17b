package av

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// FormatError reports a malformed structural header. Nested parse failures
// are chained so the message reads outermost first.
type FormatError struct {
	Format string
	Debug  string
	Offset int64
	prev   *FormatError
	orig   error
}

func (a *FormatError) Error() string {
	s := []string{}
	for p := a; p != nil; p = p.prev {
		s = append(s, fmt.Sprintf("%s:%d", p.Debug, p.Offset))
		if p.prev == nil && p.orig != nil {
			s = append(s, p.orig.Error())
		}
	}
	return a.Format + ": format error: " + strings.Join(s, ",")
}

func (a *FormatError) Unwrap() error {
	if a.prev != nil {
		return a.prev
	}
	return a.orig
}

func FormatErr(format, debug string, offset int64, prev error) error {
	_prev, _ := prev.(*FormatError)
	if _prev != nil {
		prev = nil
	}
	return &FormatError{
		Format: format,
		Debug:  debug,
		Offset: offset,
		prev:   _prev,
		orig:   prev,
	}
}

type UnsupportedCodecError struct {
	CodecID string
	TrackID int64
}

func (e *UnsupportedCodecError) Error() string {
	return fmt.Sprintf("unsupported codec %q for track %d", e.CodecID, e.TrackID)
}

// TimestampOrderViolation is a warning: the packet is still muxed.
type TimestampOrderViolation struct {
	Track    uint64
	Previous time.Duration
	Current  time.Duration
}

func (e *TimestampOrderViolation) Error() string {
	return fmt.Sprintf("track %d: timestamp %v is earlier than previous %v", e.Track, e.Current, e.Previous)
}

type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// SizeBackpatchFailure is returned when the output cannot be seeked and the
// in-memory buffer needed to size an element grows past its limit.
type SizeBackpatchFailure struct {
	ID       uint32
	Buffered int64
	Limit    int64
}

func (e *SizeBackpatchFailure) Error() string {
	return fmt.Sprintf("cannot size element 0x%x: %d bytes buffered, limit %d", e.ID, e.Buffered, e.Limit)
}

func IsFormatError(err error) bool {
	var e *FormatError
	return errors.As(err, &e)
}

func IsUnsupportedCodec(err error) bool {
	var e *UnsupportedCodecError
	return errors.As(err, &e)
}

func IsTimestampOrderViolation(err error) bool {
	var e *TimestampOrderViolation
	return errors.As(err, &e)
}

func IsIOError(err error) bool {
	var e *IOError
	return errors.As(err, &e)
}

func IsSizeBackpatchFailure(err error) bool {
	var e *SizeBackpatchFailure
	return errors.As(err, &e)
}

// TrackError is a failure confined to one track of an input. The rest of
// the input keeps being read.
type TrackError struct {
	TrackID int64
	Err     error
}

func (e *TrackError) Error() string {
	return fmt.Sprintf("track %d: %v", e.TrackID, e.Err)
}

func (e *TrackError) Unwrap() error {
	return e.Err
}

// AsTrackError returns the track error in err's chain, nil if there is none.
func AsTrackError(err error) *TrackError {
	var e *TrackError
	if errors.As(err, &e) {
		return e
	}
	return nil
}
