package model

import (
	"time"
)

// Post is a single subreddit submission as returned by the feed source.
type Post struct {
	ID        string
	Subreddit string
	Title     string
	Created   time.Time
	Permalink string // path relative to the reddit base url
	URL       string
	PostHint  string
	IsSelf    bool
	IsVideo   bool
	IsGallery bool
	SelfText  string
	Ups       int
	Gallery   []GalleryItem // ordered as in the gallery
	Kind      MediaKind
}

type GalleryItem struct {
	MediaID string
	URL     string
	Width   int
	Height  int
}

func (p Post) RecordID() string        { return p.ID }
func (p Post) RecordTitle() string     { return p.Title }
func (p Post) RecordSubreddit() string { return p.Subreddit }

// Video is the output of a transcoder run.
type Video struct {
	Path   string
	ID     string
	Title  string
	URL    string
	Width  int
	Height int
}

func (v Video) RecordID() string        { return v.ID }
func (v Video) RecordTitle() string     { return v.Title }
func (v Video) RecordSubreddit() string { return "" }

// Recordable is anything that can be written to the seen ledger and
// carry repost buttons.
type Recordable interface {
	RecordID() string
	RecordTitle() string
	RecordSubreddit() string
}

type Subscription struct {
	ChatID    int64
	Subreddit string
	Limit     *int
	Time      *TimePeriod
	Filter    *MediaKind
	CreatedAt time.Time
}

// Args returns the overrides of the subscription in the form used by
// the on-demand path.
func (s Subscription) Args() SubscriptionArgs {
	return SubscriptionArgs{
		Subreddit: s.Subreddit,
		Limit:     s.Limit,
		Time:      s.Time,
		Filter:    s.Filter,
	}
}

type SubscriptionArgs struct {
	Subreddit string
	Limit     *int
	Time      *TimePeriod
	Filter    *MediaKind
}

// Chat is a delivery destination with its optional repost channel.
type Chat struct {
	ID              int64
	RepostChannelID *int64
}

// MediaFile is a provider assigned handle of an uploaded file.
type MediaFile struct {
	FileID       string
	FileUniqueID string
}

// SubredditAbout is the metadata of a subreddit.
type SubredditAbout struct {
	DisplayName string
	Title       string
	Over18      bool
}
