package notifier

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/samber/lo"

	"tgreddit/internal/model"
	"tgreddit/internal/source"
)

var replacer = strings.NewReplacer(
	"&",
	"&amp;",
	"<",
	"&lt;",
	">",
	"&gt;",
	`"`,
	"&quot;",
)

func EscapeHTML(src string) string {
	return replacer.Replace(src)
}

func anchor(href, text string) string {
	return fmt.Sprintf(`<a href="%s">%s</a>`, EscapeHTML(href), EscapeHTML(text))
}

// meta renders the subreddit and comment links. The old reddit link only
// makes sense when links point to reddit itself.
func meta(post model.Post, linksBaseURL string) string {
	subreddit := anchor(source.SubredditURL(post.Subreddit, linksBaseURL), "/r/"+post.Subreddit)
	comments := anchor(source.PermalinkURL(post.Permalink, linksBaseURL), "comments")

	if linksBaseURL != "" {
		return fmt.Sprintf("%s [%s]", subreddit, comments)
	}

	old := anchor(source.OldRedditURL(source.PermalinkURL(post.Permalink, "")), "old")

	return fmt.Sprintf("%s [%s, %s]", subreddit, comments, old)
}

// MediaCaption is used for photos, videos, galleries and self posts.
func MediaCaption(post model.Post, linksBaseURL string) string {
	return EscapeHTML(post.Title) + "\n" + meta(post, linksBaseURL)
}

func LinkMessage(post model.Post, linksBaseURL string) string {
	return anchor(post.URL, post.Title) + "\n" + meta(post, linksBaseURL)
}

func VideoLinkCaption(video model.Video) string {
	return EscapeHTML(video.Title) + "\n" + anchor(video.URL, "video link")
}

// withExcerpt appends an excerpt to a message, blank line separated.
func withExcerpt(msg, excerpt string) string {
	if excerpt == "" {
		return msg
	}

	return msg + "\n\n" + EscapeHTML(excerpt)
}

// RepostButtons builds the two repost buttons of a delivered item.
func RepostButtons(rec model.Recordable, isGallery bool) (*tgbotapi.InlineKeyboardMarkup, error) {
	withTitle, err := model.ActionToken{PostID: rec.RecordID(), CopyCaption: true, IsGallery: isGallery}.Encode()
	if err != nil {
		return nil, err
	}
	withoutTitle, err := model.ActionToken{PostID: rec.RecordID(), CopyCaption: false, IsGallery: isGallery}.Encode()
	if err != nil {
		return nil, err
	}

	markup := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("Post", withTitle),
		tgbotapi.NewInlineKeyboardButtonData("Post (no title)", withoutTitle),
	))

	return &markup, nil
}

// SubscriptionList renders one subscription per line, or "No subscriptions".
func SubscriptionList(subs []model.Subscription) string {
	if len(subs) == 0 {
		return "No subscriptions"
	}

	return strings.Join(lo.Map(subs, func(sub model.Subscription, _ int) string {
		args := model.FormatArgs(sub.Limit, sub.Time, sub.Filter)
		if args == "" {
			return sub.Subreddit
		}

		return fmt.Sprintf("%s (%s)", sub.Subreddit, args)
	}), "\n")
}
