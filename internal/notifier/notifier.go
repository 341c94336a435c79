package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"tgreddit/internal/media"
	"tgreddit/internal/metrics"
	"tgreddit/internal/model"
	"tgreddit/internal/storage"
	"tgreddit/internal/telegram"
)

type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, disablePreview bool, markup telegram.Keyboard) (tgbotapi.Message, error)
	SendPhoto(ctx context.Context, chatID int64, path, caption string, markup telegram.Keyboard) (tgbotapi.Message, error)
	SendAnimation(ctx context.Context, chatID int64, path, caption string, markup telegram.Keyboard) (tgbotapi.Message, error)
	SendVideo(ctx context.Context, chatID int64, video model.Video, caption string, markup telegram.Keyboard) (tgbotapi.Message, error)
	SendMediaGroup(ctx context.Context, chatID int64, media []telegram.Media, caption string) ([]tgbotapi.Message, error)
	CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int, caption string) (int, error)
}

type SeenLedger interface {
	Reserve(ctx context.Context, chatID int64, rec model.Recordable) error
	MarkSeen(ctx context.Context, chatID int64, rec model.Recordable, at time.Time) error
	Title(ctx context.Context, chatID int64, postID string) (string, error)
}

type MediaStore interface {
	Store(ctx context.Context, chatID int64, postID string, files []model.MediaFile) error
	Files(ctx context.Context, chatID int64, postID string) ([]model.MediaFile, error)
}

type ChatProvider interface {
	Chat(ctx context.Context, chatID int64) (model.Chat, error)
}

type Resolver interface {
	Resolve(ctx context.Context, post model.Post) (*media.Artifacts, error)
	TranscodeLink(ctx context.Context, url string) (*media.Artifacts, error)
}

// Notifier is the delivery pipeline. It renders posts, sends them and
// keeps the seen ledger and the delivered media records up to date.
type Notifier struct {
	sender       Sender
	seen         SeenLedger
	files        MediaStore
	chats        ChatProvider
	resolver     Resolver
	linksBaseURL string
	now          func() time.Time
}

func New(sender Sender, seen SeenLedger, files MediaStore, chats ChatProvider, resolver Resolver, linksBaseURL string) *Notifier {
	return &Notifier{
		sender:       sender,
		seen:         seen,
		files:        files,
		chats:        chats,
		resolver:     resolver,
		linksBaseURL: linksBaseURL,
		now:          time.Now,
	}
}

// Process resolves and delivers a post to a chat. Once the slot is reserved
// the post is marked seen whatever happens next, so a broken post is never
// retried. The returned error is only for reporting.
func (n *Notifier) Process(ctx context.Context, chatID int64, post model.Post) error {
	logger := log.WithFields(log.Fields{
		"chat_id":   chatID,
		"post_id":   post.ID,
		"subreddit": post.Subreddit,
		"kind":      post.Kind.String(),
	})

	if err := n.seen.Reserve(ctx, chatID, post); err != nil {
		return newError(ClassTransient, "error reserving post", err)
	}

	deliverErr := n.resolveAndDeliver(ctx, chatID, post)

	if err := n.seen.MarkSeen(ctx, chatID, post, n.now()); err != nil {
		logger.WithError(err).Error("failed to mark post seen")
		return newError(ClassTransient, "error marking post seen", err)
	}

	if deliverErr != nil {
		metrics.PostFailures.WithLabelValues(post.Kind.String()).Inc()
		return deliverErr
	}

	metrics.PostsDelivered.WithLabelValues(post.Kind.String()).Inc()
	logger.Info("post delivered")

	return nil
}

func (n *Notifier) resolveAndDeliver(ctx context.Context, chatID int64, post model.Post) error {
	artifacts, err := n.resolver.Resolve(ctx, post)
	if err != nil {
		return newError(ClassPermanent, "error resolving media", err)
	}
	defer artifacts.Close()

	if err := n.deliver(ctx, chatID, post, artifacts); err != nil {
		var e *Error
		if errors.As(err, &e) {
			return err
		}
		return newError(ClassPermanent, "error delivering post", err)
	}

	return nil
}

func (n *Notifier) deliver(ctx context.Context, chatID int64, post model.Post, a *media.Artifacts) error {
	switch post.Kind {
	case model.KindImage:
		buttons, err := RepostButtons(post, false)
		if err != nil {
			return err
		}
		caption := MediaCaption(post, n.linksBaseURL)
		if a.Animated {
			_, err = n.sender.SendAnimation(ctx, chatID, a.Photo.Path, caption, buttons)
		} else {
			_, err = n.sender.SendPhoto(ctx, chatID, a.Photo.Path, caption, buttons)
		}
		return err

	case model.KindVideo:
		buttons, err := RepostButtons(post, false)
		if err != nil {
			return err
		}
		_, err = n.sender.SendVideo(ctx, chatID, a.Video.Video, MediaCaption(post, n.linksBaseURL), buttons)
		return err

	case model.KindGallery:
		return n.deliverGallery(ctx, chatID, post, a)

	case model.KindSelfText:
		buttons, err := RepostButtons(post, false)
		if err != nil {
			return err
		}
		text := withExcerpt(MediaCaption(post, n.linksBaseURL), a.Excerpt)
		_, err = n.sender.SendText(ctx, chatID, text, true, buttons)
		return err

	default:
		if post.Kind == model.KindUnknown {
			log.WithField("post_id", post.ID).Warn("delivering post of unknown kind as a link")
		}
		buttons, err := RepostButtons(post, false)
		if err != nil {
			return err
		}
		text := withExcerpt(LinkMessage(post, n.linksBaseURL), a.Excerpt)
		_, err = n.sender.SendText(ctx, chatID, text, false, buttons)
		return err
	}
}

// deliverGallery sends the album, stores the handle of every photo for
// reposting and follows up with the repost buttons, which albums can't carry.
func (n *Notifier) deliverGallery(ctx context.Context, chatID int64, post model.Post, a *media.Artifacts) error {
	caption := MediaCaption(post, n.linksBaseURL)

	if len(a.Gallery) == 1 {
		buttons, err := RepostButtons(post, false)
		if err != nil {
			return err
		}
		_, err = n.sender.SendPhoto(ctx, chatID, a.Gallery[0].Path, caption, buttons)
		return err
	}

	group := lo.Map(a.Gallery, func(f *media.LocalFile, _ int) telegram.Media {
		return telegram.Media{Path: f.Path}
	})

	msgs, err := n.sender.SendMediaGroup(ctx, chatID, group, caption)
	if err != nil {
		return err
	}

	files := make([]model.MediaFile, 0, len(msgs))
	for _, msg := range msgs {
		file, ok := telegram.PhotoFile(msg)
		if !ok {
			return newError(ClassInvariant, fmt.Sprintf("message %d of gallery has no photo", msg.MessageID), nil)
		}
		files = append(files, file)
	}

	if err := n.files.Store(ctx, chatID, post.ID, files); err != nil {
		return newError(ClassTransient, "error storing gallery files", err)
	}

	buttons, err := RepostButtons(post, true)
	if err != nil {
		return err
	}
	_, err = n.sender.SendText(ctx, chatID, "To repost:", true, buttons)

	return err
}

// DeliverVideoLink transcodes a url sent by a user and sends the video back.
func (n *Notifier) DeliverVideoLink(ctx context.Context, chatID int64, url string) error {
	artifacts, err := n.resolver.TranscodeLink(ctx, url)
	if err != nil {
		return newError(ClassUser, "could not download video", err)
	}
	defer artifacts.Close()

	video := artifacts.Video.Video
	if err := n.seen.MarkSeen(ctx, chatID, video, n.now()); err != nil {
		return newError(ClassTransient, "error recording video", err)
	}

	// Extractor ids can be too long for a callback token. The video is
	// still sent, only without the repost buttons.
	buttons, err := RepostButtons(video, false)
	if err != nil {
		log.WithError(err).WithField("video_id", video.ID).Warn("sending video without repost buttons")
		buttons = nil
	}

	if _, err := n.sender.SendVideo(ctx, chatID, video, VideoLinkCaption(video), buttons); err != nil {
		return newError(ClassTransient, "error sending video", err)
	}

	return nil
}

// Repost re-emits a delivered item to the chat's repost channel as the
// token describes. messageID is the message carrying the item.
func (n *Notifier) Repost(ctx context.Context, chatID int64, token model.ActionToken, messageID int) error {
	channelID, err := n.repostChannel(ctx, chatID)
	if err != nil {
		return err
	}

	caption := ""
	if token.CopyCaption {
		title, err := n.seen.Title(ctx, chatID, token.PostID)
		if err != nil {
			return lookupError("post", err)
		}
		caption = EscapeHTML(title)
	}

	if !token.IsGallery {
		return n.copyToChannel(ctx, channelID, chatID, messageID, caption)
	}

	files, err := n.files.Files(ctx, chatID, token.PostID)
	if err != nil {
		return lookupError("gallery files", err)
	}

	group := lo.Map(files, func(f model.MediaFile, _ int) telegram.Media {
		return telegram.Media{FileID: f.FileID}
	})
	if _, err := n.sender.SendMediaGroup(ctx, channelID, group, caption); err != nil {
		return newError(ClassTransient, "error reposting gallery", err)
	}

	return nil
}

// RepostMessage copies any message of the chat to its repost channel.
func (n *Notifier) RepostMessage(ctx context.Context, chatID int64, messageID int, caption string) error {
	channelID, err := n.repostChannel(ctx, chatID)
	if err != nil {
		return err
	}

	return n.copyToChannel(ctx, channelID, chatID, messageID, EscapeHTML(caption))
}

func (n *Notifier) copyToChannel(ctx context.Context, channelID, chatID int64, messageID int, caption string) error {
	if _, err := n.sender.CopyMessage(ctx, channelID, chatID, messageID, caption); err != nil {
		return newError(ClassTransient, "error copying message", err)
	}

	return nil
}

func (n *Notifier) repostChannel(ctx context.Context, chatID int64) (int64, error) {
	chat, err := n.chats.Chat(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && chat.RepostChannelID == nil) {
		return 0, newError(ClassUser, "Repost channel not registered", ErrNoRepostChannel)
	}
	if err != nil {
		return 0, newError(ClassTransient, "error reading chat", err)
	}

	return *chat.RepostChannelID, nil
}

func lookupError(what string, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return newError(ClassInvariant, what+" not found", err)
	}

	return newError(ClassTransient, "error reading "+what, err)
}
