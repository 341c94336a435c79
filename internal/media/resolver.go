package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"tgreddit/internal/model"
	"tgreddit/internal/source"
)

// MaxGroupSize is the largest media group telegram accepts.
const MaxGroupSize = 10

var ErrNoGalleryItems = errors.New("gallery has no items")

type Downloader interface {
	Download(ctx context.Context, url string) (*LocalFile, error)
}

type Transcoder interface {
	Transcode(ctx context.Context, url string) (*VideoFile, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, url string) (string, error)
}

// Artifacts is what a post resolves to. Which fields are set depends on
// Kind. Close releases every local file.
type Artifacts struct {
	Kind     model.MediaKind
	Photo    *LocalFile
	Animated bool
	Video    *VideoFile
	Gallery  []*LocalFile
	Excerpt  string

	closers []io.Closer
}

func (a *Artifacts) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("failed to remove media file")
		}
	}
	a.closers = nil
}

var animatedExts = map[string]bool{
	"gif": true,
	"mp4": true,
}

// Resolver turns classified posts into local media.
type Resolver struct {
	downloader Downloader
	transcoder Transcoder
	summarizer Summarizer
}

// NewResolver builds a resolver. summarizer may be nil.
func NewResolver(downloader Downloader, transcoder Transcoder, summarizer Summarizer) *Resolver {
	return &Resolver{
		downloader: downloader,
		transcoder: transcoder,
		summarizer: summarizer,
	}
}

func (r *Resolver) Resolve(ctx context.Context, post model.Post) (*Artifacts, error) {
	switch post.Kind {
	case model.KindImage:
		return r.resolveImage(ctx, post)
	case model.KindVideo:
		return r.resolveVideo(ctx, post)
	case model.KindGallery:
		return r.resolveGallery(ctx, post)
	case model.KindSelfText:
		return &Artifacts{Kind: model.KindSelfText, Excerpt: Excerpt(post.SelfText)}, nil
	default:
		return r.resolveLink(ctx, post), nil
	}
}

func (r *Resolver) resolveImage(ctx context.Context, post model.Post) (*Artifacts, error) {
	url := post.URL
	animated := false
	if strings.HasSuffix(url, ".gifv") {
		url = strings.TrimSuffix(url, ".gifv") + ".mp4"
		animated = true
	}

	file, err := r.downloader.Download(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error downloading image of %s: %w", post.ID, err)
	}

	return &Artifacts{
		Kind:     model.KindImage,
		Photo:    file,
		Animated: animated || animatedExts[file.Ext()],
		closers:  []io.Closer{file},
	}, nil
}

func (r *Resolver) resolveVideo(ctx context.Context, post model.Post) (*Artifacts, error) {
	url := post.URL
	if url == "" {
		url = source.PermalinkURL(post.Permalink, "")
	}

	video, err := r.transcoder.Transcode(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error transcoding video of %s: %w", post.ID, err)
	}

	return &Artifacts{
		Kind:    model.KindVideo,
		Video:   video,
		closers: []io.Closer{video},
	}, nil
}

// resolveGallery downloads the gallery in order. Items that fail are
// dropped, the gallery fails only when nothing survives.
func (r *Resolver) resolveGallery(ctx context.Context, post model.Post) (*Artifacts, error) {
	if len(post.Gallery) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoGalleryItems, post.ID)
	}

	a := &Artifacts{Kind: model.KindGallery}
	for i, item := range post.Gallery {
		if len(a.Gallery) == MaxGroupSize {
			log.WithFields(log.Fields{
				"post_id": post.ID,
				"items":   len(post.Gallery),
				"kept":    MaxGroupSize,
			}).Warn("gallery truncated")
			break
		}

		file, err := r.downloader.Download(ctx, item.URL)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"post_id":  post.ID,
				"media_id": item.MediaID,
				"index":    i,
			}).Error("failed to download gallery item")
			continue
		}

		a.Gallery = append(a.Gallery, file)
		a.closers = append(a.closers, file)
	}

	if len(a.Gallery) == 0 {
		return nil, fmt.Errorf("every item of gallery %s failed to download", post.ID)
	}

	return a, nil
}

func (r *Resolver) resolveLink(ctx context.Context, post model.Post) *Artifacts {
	a := &Artifacts{Kind: post.Kind}
	if r.summarizer == nil || post.URL == "" {
		return a
	}

	excerpt, err := r.summarizer.Summarize(ctx, post.URL)
	if err != nil {
		log.WithError(err).WithField("post_id", post.ID).Warn("failed to summarize link")
		return a
	}
	a.Excerpt = excerpt

	return a
}

// TranscodeLink runs the transcoder for a url sent by a user.
func (r *Resolver) TranscodeLink(ctx context.Context, url string) (*Artifacts, error) {
	video, err := r.transcoder.Transcode(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error transcoding %s: %w", url, err)
	}

	return &Artifacts{
		Kind:    model.KindVideo,
		Video:   video,
		closers: []io.Closer{video},
	}, nil
}
