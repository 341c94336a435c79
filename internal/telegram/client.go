package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"tgreddit/internal/model"
)

const maxFloodRetries = 3

// Keyboard is an inline keyboard, nil for none.
type Keyboard = *tgbotapi.InlineKeyboardMarkup

// Media is a photo to send in a group, either a local file or a handle of
// an already uploaded one.
type Media struct {
	Path   string
	FileID string
}

func (m Media) data() tgbotapi.RequestFileData {
	if m.FileID != "" {
		return tgbotapi.FileID(m.FileID)
	}

	return tgbotapi.FilePath(m.Path)
}

// Client wraps the bot api with flood control retries. Every send uses
// HTML parse mode.
type Client struct {
	api *tgbotapi.BotAPI
}

func New(api *tgbotapi.BotAPI) *Client {
	return &Client{api: api}
}

func (c *Client) API() *tgbotapi.BotAPI {
	return c.api
}

func (c *Client) SendText(ctx context.Context, chatID int64, text string, disablePreview bool, markup Keyboard) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = disablePreview
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	return c.send(ctx, "sendMessage", msg)
}

func (c *Client) SendPhoto(ctx context.Context, chatID int64, path, caption string, markup Keyboard) (tgbotapi.Message, error) {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FilePath(path))
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		photo.ReplyMarkup = markup
	}

	return c.send(ctx, "sendPhoto", photo)
}

func (c *Client) SendAnimation(ctx context.Context, chatID int64, path, caption string, markup Keyboard) (tgbotapi.Message, error) {
	animation := tgbotapi.NewAnimation(chatID, tgbotapi.FilePath(path))
	animation.Caption = caption
	animation.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		animation.ReplyMarkup = markup
	}

	return c.send(ctx, "sendAnimation", animation)
}

// SendVideo uploads the video with its dimensions so clients render the
// right aspect ratio. VideoConfig has no width and height, so the request
// is built by hand.
func (c *Client) SendVideo(ctx context.Context, chatID int64, video model.Video, caption string, markup Keyboard) (tgbotapi.Message, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonEmpty("caption", caption)
	params.AddNonEmpty("parse_mode", tgbotapi.ModeHTML)
	params.AddNonZero("width", video.Width)
	params.AddNonZero("height", video.Height)
	params.AddBool("supports_streaming", true)
	if err := params.AddInterface("reply_markup", markup); err != nil {
		return tgbotapi.Message{}, err
	}

	files := []tgbotapi.RequestFile{{Name: "video", Data: tgbotapi.FilePath(video.Path)}}

	var msg tgbotapi.Message
	err := c.retry(ctx, "sendVideo", func() error {
		resp, err := c.api.UploadFiles("sendVideo", params, files)
		if err != nil {
			return err
		}

		return json.Unmarshal(resp.Result, &msg)
	})

	return msg, err
}

// SendMediaGroup sends photos as one album with the caption on the first.
func (c *Client) SendMediaGroup(ctx context.Context, chatID int64, media []Media, caption string) ([]tgbotapi.Message, error) {
	files := make([]interface{}, 0, len(media))
	for i, m := range media {
		photo := tgbotapi.NewInputMediaPhoto(m.data())
		if i == 0 && caption != "" {
			photo.Caption = caption
			photo.ParseMode = tgbotapi.ModeHTML
		}
		files = append(files, photo)
	}

	var msgs []tgbotapi.Message
	err := c.retry(ctx, "sendMediaGroup", func() error {
		var err error
		msgs, err = c.api.SendMediaGroup(tgbotapi.NewMediaGroup(chatID, files))
		return err
	})

	return msgs, err
}

// CopyMessage copies a message to another chat. The caption is always
// sent, so an empty caption removes the original one.
func (c *Client) CopyMessage(ctx context.Context, toChatID, fromChatID int64, messageID int, caption string) (int, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", toChatID)
	params.AddNonZero64("from_chat_id", fromChatID)
	params.AddNonZero("message_id", messageID)
	params["caption"] = caption
	params.AddNonEmpty("parse_mode", tgbotapi.ModeHTML)

	var id tgbotapi.MessageID
	err := c.retry(ctx, "copyMessage", func() error {
		resp, err := c.api.MakeRequest("copyMessage", params)
		if err != nil {
			return err
		}

		return json.Unmarshal(resp.Result, &id)
	})

	return id.MessageID, err
}

func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return c.retry(ctx, "answerCallbackQuery", func() error {
		_, err := c.api.Request(tgbotapi.NewCallback(callbackID, text))
		return err
	})
}

func (c *Client) SetCommands(ctx context.Context, commands []tgbotapi.BotCommand) error {
	return c.retry(ctx, "setMyCommands", func() error {
		_, err := c.api.Request(tgbotapi.NewSetMyCommands(commands...))
		return err
	})
}

func (c *Client) send(ctx context.Context, method string, chattable tgbotapi.Chattable) (tgbotapi.Message, error) {
	var msg tgbotapi.Message
	err := c.retry(ctx, method, func() error {
		var err error
		msg, err = c.api.Send(chattable)
		return err
	})

	return msg, err
}

// floodBackOff waits as long as telegram asked in its last flood error.
type floodBackOff struct {
	wait time.Duration
}

func (b *floodBackOff) NextBackOff() time.Duration { return b.wait }
func (b *floodBackOff) Reset()                     {}

// retry runs fn again only when telegram answers with retry_after.
func (c *Client) retry(ctx context.Context, method string, fn func() error) error {
	flood := &floodBackOff{}
	policy := backoff.WithContext(backoff.WithMaxRetries(flood, maxFloodRetries), ctx)

	err := backoff.RetryNotify(func() error {
		err := fn()
		if err == nil {
			return nil
		}

		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) && tgErr.RetryAfter > 0 {
			flood.wait = time.Duration(tgErr.RetryAfter) * time.Second
			return err
		}

		return backoff.Permanent(err)
	}, policy, func(err error, wait time.Duration) {
		log.WithError(err).WithFields(log.Fields{
			"method": method,
			"wait":   wait,
		}).Warn("telegram flood control, retrying")
	})
	if err != nil {
		return fmt.Errorf("telegram %s: %w", method, err)
	}

	return nil
}

// PhotoFile returns the handle of the largest size of a photo message.
func PhotoFile(msg tgbotapi.Message) (model.MediaFile, bool) {
	if len(msg.Photo) == 0 {
		return model.MediaFile{}, false
	}

	largest := lo.MaxBy(msg.Photo, func(a, b tgbotapi.PhotoSize) bool {
		return a.FileSize > b.FileSize || (a.FileSize == b.FileSize && a.Width*a.Height > b.Width*b.Height)
	})

	return model.MediaFile{FileID: largest.FileID, FileUniqueID: largest.FileUniqueID}, true
}
