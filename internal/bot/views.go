package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"tgreddit/internal/fetcher"
	"tgreddit/internal/model"
	"tgreddit/internal/notifier"
	"tgreddit/internal/source"
	"tgreddit/internal/storage"
)

var Commands = []tgbotapi.BotCommand{
	{Command: "help", Description: "display this text"},
	{Command: "sub", Description: "subscribe to subreddit's top posts"},
	{Command: "unsub", Description: "unsubscribe from subreddit's top posts"},
	{Command: "listsubs", Description: "list subreddit subscriptions"},
	{Command: "get", Description: "get top posts"},
	{Command: "registerchannel", Description: "register channel to which the bot is supposed to post"},
	{Command: "reposttochannel", Description: "repost to the registered channel"},
}

const argsUsage = "<subreddit> [limit=N] [time=hour|day|week|month|year|all] [filter=image|video|link|selftext|gallery]"

type FeedMeta interface {
	FetchFeedMeta(ctx context.Context, subreddit string) (model.SubredditAbout, error)
}

type SubscriptionStore interface {
	Subscribe(ctx context.Context, sub model.Subscription) error
	Unsubscribe(ctx context.Context, chatID int64, subreddit string) (string, error)
	ForChat(ctx context.Context, chatID int64) ([]model.Subscription, error)
}

type ChatStore interface {
	SetRepostChannel(ctx context.Context, chatID, channelID int64) error
}

type PostGetter interface {
	Get(ctx context.Context, chatID int64, args model.SubscriptionArgs) (int, error)
}

type Reposter interface {
	Repost(ctx context.Context, chatID int64, token model.ActionToken, messageID int) error
	RepostMessage(ctx context.Context, chatID int64, messageID int, caption string) error
}

type VideoLinker interface {
	DeliverVideoLink(ctx context.Context, chatID int64, url string) error
}

func reply(ctx context.Context, r Replier, update tgbotapi.Update, text string) error {
	_, err := r.SendText(ctx, update.Message.Chat.ID, text, true, nil)
	return err
}

func ViewCmdHelp() ViewFunc {
	lines := []string{"These commands are supported:"}
	for _, cmd := range Commands {
		lines = append(lines, fmt.Sprintf("/%s - %s", cmd.Command, cmd.Description))
	}
	text := notifier.EscapeHTML(strings.Join(lines, "\n"))

	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		return reply(ctx, r, update, text)
	}
}

func parseArgs(update tgbotapi.Update, usage string) (model.SubscriptionArgs, error) {
	args, err := model.ParseSubscriptionArgs(update.Message.CommandArguments())
	if err != nil {
		return args, notifier.UserError(fmt.Sprintf("Usage: /%s %s", update.Message.Command(), usage), err)
	}

	return args, nil
}

// ViewCmdSub subscribes the chat under the subreddit's canonical name.
func ViewCmdSub(meta FeedMeta, subs SubscriptionStore) ViewFunc {
	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		args, err := parseArgs(update, argsUsage)
		if err != nil {
			return err
		}

		about, err := meta.FetchFeedMeta(ctx, args.Subreddit)
		if errors.Is(err, source.ErrNoSuchSubreddit) {
			return notifier.UserError("No such subreddit", err)
		}
		if err != nil {
			return fmt.Errorf("couldn't get about of r/%s: %w", args.Subreddit, err)
		}

		chatID := update.Message.Chat.ID
		sub := model.Subscription{
			ChatID:    chatID,
			Subreddit: about.DisplayName,
			Limit:     args.Limit,
			Time:      args.Time,
			Filter:    args.Filter,
		}
		if err := subs.Subscribe(ctx, sub); err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"chat_id":   chatID,
			"subreddit": sub.Subreddit,
			"args":      model.FormatArgs(sub.Limit, sub.Time, sub.Filter),
		}).Info("subscribed")

		return reply(ctx, r, update, "Subscribed to r/"+notifier.EscapeHTML(sub.Subreddit))
	}
}

func ViewCmdUnsub(subs SubscriptionStore) ViewFunc {
	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		subreddit := model.NormalizeSubreddit(update.Message.CommandArguments())
		if subreddit == "" {
			return notifier.UserError("Usage: /unsub <subreddit>", nil)
		}

		stored, err := subs.Unsubscribe(ctx, update.Message.Chat.ID, subreddit)
		if errors.Is(err, storage.ErrNotFound) {
			return notifier.UserError("Error: Not subscribed to r/"+subreddit, err)
		}
		if err != nil {
			return err
		}

		return reply(ctx, r, update, "Unsubscribed from r/"+notifier.EscapeHTML(stored))
	}
}

func ViewCmdListSubs(subs SubscriptionStore) ViewFunc {
	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		list, err := subs.ForChat(ctx, update.Message.Chat.ID)
		if err != nil {
			return err
		}

		return reply(ctx, r, update, notifier.EscapeHTML(notifier.SubscriptionList(list)))
	}
}

func ViewCmdGet(posts PostGetter) ViewFunc {
	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		args, err := parseArgs(update, argsUsage)
		if err != nil {
			return err
		}

		n, err := posts.Get(ctx, update.Message.Chat.ID, args)
		if errors.Is(err, fetcher.ErrNoPosts) {
			return reply(ctx, r, update, "No posts found")
		}
		if err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"chat_id":   update.Message.Chat.ID,
			"subreddit": args.Subreddit,
			"posts":     n,
		}).Info("delivered posts on request")

		return nil
	}
}

func ViewCmdRegisterChannel(chats ChatStore) ViewFunc {
	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		channelID, err := strconv.ParseInt(strings.TrimSpace(update.Message.CommandArguments()), 10, 64)
		if err != nil {
			return notifier.UserError("Usage: /registerchannel <channel_id>", err)
		}

		if err := chats.SetRepostChannel(ctx, update.Message.Chat.ID, channelID); err != nil {
			return err
		}

		return reply(ctx, r, update, fmt.Sprintf("Repost channel %d added successfully", channelID))
	}
}

// ViewCmdRepostToChannel copies a message by id, with the rest of the
// arguments as its caption.
func ViewCmdRepostToChannel(reposter Reposter) ViewFunc {
	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		fields := strings.SplitN(strings.TrimSpace(update.Message.CommandArguments()), " ", 2)

		messageID, err := strconv.Atoi(fields[0])
		if err != nil {
			return notifier.UserError("Usage: /reposttochannel <message_id> [caption]", err)
		}

		caption := ""
		if len(fields) == 2 {
			caption = strings.TrimSpace(fields[1])
		}

		return reposter.RepostMessage(ctx, update.Message.Chat.ID, messageID, caption)
	}
}

func ViewVideoLink(videos VideoLinker) ViewFunc {
	return func(ctx context.Context, r Replier, update tgbotapi.Update) error {
		return videos.DeliverVideoLink(ctx, update.Message.Chat.ID, strings.TrimSpace(update.Message.Text))
	}
}

// CallbackRepost handles the repost buttons. The message to copy is the
// one the buttons are attached to, or the one they reply to.
func CallbackRepost(reposter Reposter) CallbackFunc {
	return func(ctx context.Context, r Replier, query *tgbotapi.CallbackQuery) (string, error) {
		if query.Message == nil {
			return "", errors.New("callback query without message")
		}

		token, err := model.DecodeActionToken(query.Data)
		if err != nil {
			return "", err
		}

		messageID := query.Message.MessageID
		if query.Message.ReplyToMessage != nil {
			messageID = query.Message.ReplyToMessage.MessageID
		}

		if err := reposter.Repost(ctx, query.Message.Chat.ID, token, messageID); err != nil {
			return "", err
		}

		return "Posted to channel", nil
	}
}
