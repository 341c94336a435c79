package bot

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"tgreddit/internal/notifier"
	"tgreddit/internal/telegram"
)

const updateTimeout = 15 * time.Minute

type Replier interface {
	SendText(ctx context.Context, chatID int64, text string, disablePreview bool, markup telegram.Keyboard) (tgbotapi.Message, error)
}

type Client interface {
	Replier
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SetCommands(ctx context.Context, commands []tgbotapi.BotCommand) error
}

type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type ViewFunc func(ctx context.Context, r Replier, update tgbotapi.Update) error

// CallbackFunc handles a button press and returns the text shown to the
// user in the callback answer.
type CallbackFunc func(ctx context.Context, r Replier, query *tgbotapi.CallbackQuery) (string, error)

type Bot struct {
	updates    Updates
	client     Client
	authorized func(userID int64) bool

	cmdViews map[string]ViewFunc
	linkView ViewFunc
	callback CallbackFunc

	wg sync.WaitGroup
}

func New(updates Updates, client Client, authorized func(userID int64) bool) *Bot {
	return &Bot{
		updates:    updates,
		client:     client,
		authorized: authorized,
	}
}

func (b *Bot) RegisterCmdView(cmd string, view ViewFunc) {
	if b.cmdViews == nil {
		b.cmdViews = make(map[string]ViewFunc)
	}

	b.cmdViews[cmd] = view
}

// RegisterLinkView sets the view for plain messages holding a url.
func (b *Bot) RegisterLinkView(view ViewFunc) {
	b.linkView = view
}

func (b *Bot) RegisterCallback(callback CallbackFunc) {
	b.callback = callback
}

// PublishCommands registers the command list with telegram.
func (b *Bot) PublishCommands(ctx context.Context) error {
	return b.client.SetCommands(ctx, Commands)
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", p).Error("panic in update handler recovered")
		}
	}()

	user := update.SentFrom()
	if user == nil {
		return
	}
	if !b.authorized(user.ID) {
		log.WithFields(log.Fields{
			"user_id":  user.ID,
			"username": user.UserName,
		}).Warn("ignoring update from unauthorized user")
		return
	}

	if update.CallbackQuery != nil {
		b.handleCallback(ctx, update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	var view ViewFunc
	switch {
	case update.Message.IsCommand():
		view = b.cmdViews[update.Message.Command()]
	case isURL(update.Message.Text):
		view = b.linkView
	}
	if view == nil {
		log.WithField("update_id", update.UpdateID).Debug("unhandled update")
		return
	}

	if err := view(ctx, b.client, update); err != nil {
		b.replyError(ctx, update.Message.Chat.ID, err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if b.callback == nil {
		return
	}

	text, err := b.callback(ctx, b.client, query)
	if err != nil {
		text = userMessage(err)
		if query.Message != nil {
			b.replyError(ctx, query.Message.Chat.ID, err)
		}
	}

	if err := b.client.AnswerCallback(ctx, query.ID, text); err != nil {
		log.WithError(err).Warn("failed to answer callback")
	}
}

// replyError tells the user what went wrong. Only failures that are not
// the user's doing are logged as errors.
func (b *Bot) replyError(ctx context.Context, chatID int64, err error) {
	if notifier.ClassOf(err) == notifier.ClassUser {
		log.WithError(err).WithField("chat_id", chatID).Info("request rejected")
	} else {
		log.WithError(err).WithField("chat_id", chatID).Error("failed to handle update")
	}

	if _, sendErr := b.client.SendText(ctx, chatID, notifier.EscapeHTML(userMessage(err)), true, nil); sendErr != nil {
		log.WithError(sendErr).Error("failed to send error message")
	}
}

func userMessage(err error) string {
	var e *notifier.Error
	if errors.As(err, &e) && e.Class == notifier.ClassUser {
		return e.Reason
	}

	return "Something went wrong"
}

// Run dispatches updates until ctx is done, then waits for in-flight
// handlers to finish.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.updates.GetUpdatesChan(u)

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return errors.New("updates channel closed")
			}

			b.wg.Add(1)
			go func(update tgbotapi.Update) {
				defer b.wg.Done()

				updateCtx, updateCancel := context.WithTimeout(context.Background(), updateTimeout)
				defer updateCancel()

				b.handleUpdate(updateCtx, update)
			}(update)
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			b.wg.Wait()
			return ctx.Err()
		}
	}
}

func isURL(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsAny(text, " \n\t") {
		return false
	}

	u, err := url.Parse(text)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
