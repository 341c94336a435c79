package model

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidArgs = errors.New("invalid arguments")

// MediaKind is the closed set of post kinds the delivery pipeline knows
// how to handle.
type MediaKind int

const (
	KindUnknown MediaKind = iota
	KindImage
	KindVideo
	KindGallery
	KindSelfText
	KindLink
)

var kindNames = map[MediaKind]string{
	KindUnknown:  "unknown",
	KindImage:    "image",
	KindVideo:    "video",
	KindGallery:  "gallery",
	KindSelfText: "selftext",
	KindLink:     "link",
}

func (k MediaKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return fmt.Sprintf("MediaKind(%d)", int(k))
}

// ParseMediaKind parses the lower case name of a kind. "self" is accepted
// as a shorthand of "selftext".
func ParseMediaKind(s string) (MediaKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "self" {
		return KindSelfText, nil
	}

	for kind, name := range kindNames {
		if name == s {
			return kind, nil
		}
	}

	return KindUnknown, fmt.Errorf("%w: unknown post type %q", ErrInvalidArgs, s)
}

// Classify maps post metadata to a MediaKind. It never fails: posts with no
// hint at all are KindUnknown, which callers resolve by fetching the post
// directly and classifying again.
func Classify(p Post) MediaKind {
	switch {
	case p.IsGallery:
		return KindGallery
	case p.IsSelf:
		return KindSelfText
	case p.IsVideo:
		return KindVideo
	}

	hint := strings.ToLower(p.PostHint)
	switch {
	case hint == "video", hint == "rich:video", hint == "hosted:video":
		return KindVideo
	case hint == "image":
		return KindImage
	case hint == "":
		return KindUnknown
	default:
		return KindLink
	}
}

// ParseFilter parses a kind users may filter on. Unknown is only a
// classification outcome and is rejected.
func ParseFilter(s string) (MediaKind, error) {
	kind, err := ParseMediaKind(s)
	if err != nil {
		return kind, err
	}
	if kind == KindUnknown {
		return kind, fmt.Errorf("%w: cannot filter on %q", ErrInvalidArgs, s)
	}

	return kind, nil
}

// TimePeriod is the window of a subreddit top listing.
type TimePeriod string

const (
	PeriodHour  TimePeriod = "hour"
	PeriodDay   TimePeriod = "day"
	PeriodWeek  TimePeriod = "week"
	PeriodMonth TimePeriod = "month"
	PeriodYear  TimePeriod = "year"
	PeriodAll   TimePeriod = "all"
)

var periods = []TimePeriod{PeriodHour, PeriodDay, PeriodWeek, PeriodMonth, PeriodYear, PeriodAll}

func (t TimePeriod) String() string {
	return string(t)
}

func ParseTimePeriod(s string) (TimePeriod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, p := range periods {
		if string(p) == s {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: unknown time period %q", ErrInvalidArgs, s)
}
