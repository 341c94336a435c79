package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"tgreddit/internal/metrics"
	"tgreddit/internal/model"
)

// ErrNoPosts is returned by Get when nothing matched.
var ErrNoPosts = errors.New("no posts found")

type Source interface {
	FetchTop(ctx context.Context, subreddit string, limit int, period model.TimePeriod) ([]model.Post, error)
	FetchItem(ctx context.Context, id string) (model.Post, error)
}

type SubscriptionList interface {
	All(ctx context.Context) ([]model.Subscription, error)
}

type SeenLedger interface {
	IsSeen(ctx context.Context, chatID int64, postID string) (bool, error)
	HasHistory(ctx context.Context, chatID int64, subreddit string) (bool, error)
	MarkSeen(ctx context.Context, chatID int64, rec model.Recordable, at time.Time) error
}

type Processor interface {
	Process(ctx context.Context, chatID int64, post model.Post) error
}

// Defaults fill in what a subscription or a request leaves out.
type Defaults struct {
	Limit  int
	Time   model.TimePeriod
	Filter *model.MediaKind
}

type Fetcher struct {
	source        Source
	subscriptions SubscriptionList
	seen          SeenLedger
	processor     Processor

	defaults        Defaults
	skipInitialSend bool
	fetchInterval   time.Duration
}

func New(source Source, subscriptions SubscriptionList, seen SeenLedger, processor Processor,
	defaults Defaults, skipInitialSend bool, fetchInterval time.Duration) *Fetcher {

	return &Fetcher{
		source:          source,
		subscriptions:   subscriptions,
		seen:            seen,
		processor:       processor,
		defaults:        defaults,
		skipInitialSend: skipInitialSend,
		fetchInterval:   fetchInterval,
	}
}

// Run polls right away and then on every tick until ctx is done.
func (f *Fetcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.fetchInterval)
	defer ticker.Stop()

	for {
		if err := f.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.WithError(err).Error("poll failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll checks every subscription once, in registry order. A failing
// subscription is logged and skipped.
func (f *Fetcher) Poll(ctx context.Context) error {
	logger := log.WithField("cycle", uuid.NewString())
	logger.Info("checking subscriptions for new posts")

	subs, err := f.subscriptions.All(ctx)
	if err != nil {
		return fmt.Errorf("error listing subscriptions: %w", err)
	}

	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := f.pollSubscription(ctx, logger, sub); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.SubscriptionFailures.Inc()
			logger.WithError(err).WithFields(log.Fields{
				"chat_id":   sub.ChatID,
				"subreddit": sub.Subreddit,
			}).Error("failed to check subscription for new posts")
		}
	}

	metrics.PollCycles.Inc()

	return nil
}

func (f *Fetcher) pollSubscription(ctx context.Context, logger *log.Entry, sub model.Subscription) error {
	limit, period, filter := f.resolveArgs(sub.Args())
	logger = logger.WithFields(log.Fields{
		"chat_id":   sub.ChatID,
		"subreddit": sub.Subreddit,
	})

	posts, err := f.source.FetchTop(ctx, sub.Subreddit, limit, period)
	if err != nil {
		return err
	}
	logger.WithField("posts", len(posts)).Debug("got posts")

	// A subscription without any history is new: its current posts are
	// recorded without being sent.
	hasHistory, err := f.seen.HasHistory(ctx, sub.ChatID, sub.Subreddit)
	if err != nil {
		return fmt.Errorf("error checking history: %w", err)
	}
	// Items already started are finished even when shutdown begins, so
	// their seen records are written.
	itemCtx := context.WithoutCancel(ctx)

	if !hasHistory && f.skipInitialSend {
		for _, post := range posts {
			if err := f.seen.MarkSeen(itemCtx, sub.ChatID, post, time.Now()); err != nil {
				return fmt.Errorf("error marking post %s seen: %w", post.ID, err)
			}
			metrics.PostsSkipped.WithLabelValues(metrics.SkipBackfill).Inc()
		}
		logger.WithField("posts", len(posts)).Info("new subscription, marked posts seen")

		return nil
	}

	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := f.checkPost(itemCtx, sub.ChatID, post, filter); err != nil {
			logger.WithError(err).WithField("post_id", post.ID).Error("failed to handle post")
		}
	}

	return nil
}

// checkPost delivers a post unless the chat has seen it. Posts not
// matching the filter are recorded as seen without delivery.
func (f *Fetcher) checkPost(ctx context.Context, chatID int64, post model.Post, filter *model.MediaKind) error {
	seen, err := f.seen.IsSeen(ctx, chatID, post.ID)
	if err != nil {
		return fmt.Errorf("error checking if post is seen: %w", err)
	}
	if seen {
		metrics.PostsSkipped.WithLabelValues(metrics.SkipSeen).Inc()
		return nil
	}

	post = f.refine(ctx, post)

	if !matches(post, filter) {
		log.WithFields(log.Fields{
			"post_id": post.ID,
			"kind":    post.Kind.String(),
			"filter":  filter.String(),
		}).Debug("post does not match filter, skipping")
		metrics.PostsSkipped.WithLabelValues(metrics.SkipFilter).Inc()

		return f.seen.MarkSeen(ctx, chatID, post, time.Now())
	}

	return f.processor.Process(ctx, chatID, post)
}

// refine fetches the full post when the listing gave no type hint.
func (f *Fetcher) refine(ctx context.Context, post model.Post) model.Post {
	if post.Kind != model.KindUnknown {
		return post
	}

	full, err := f.source.FetchItem(ctx, post.ID)
	if err != nil {
		log.WithError(err).WithField("post_id", post.ID).Warn("failed to fetch post details")
		return post
	}

	return full
}

// Get delivers the current top posts of a subreddit on request. Seen
// posts are delivered again, every delivered post is recorded.
func (f *Fetcher) Get(ctx context.Context, chatID int64, args model.SubscriptionArgs) (int, error) {
	limit, period, filter := f.resolveArgs(args)

	posts, err := f.source.FetchTop(ctx, args.Subreddit, limit, period)
	if err != nil {
		return 0, fmt.Errorf("failed to get posts: %w", err)
	}

	posts = lo.Map(posts, func(post model.Post, _ int) model.Post {
		return f.refine(ctx, post)
	})
	posts = lo.Filter(posts, func(post model.Post, _ int) bool {
		return matches(post, filter)
	})
	if len(posts) == 0 {
		return 0, ErrNoPosts
	}

	for _, post := range posts {
		if err := f.processor.Process(ctx, chatID, post); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"chat_id": chatID,
				"post_id": post.ID,
			}).Error("failed to handle post")
		}
	}

	return len(posts), nil
}

// DeliverItem delivers a single post by id.
func (f *Fetcher) DeliverItem(ctx context.Context, chatID int64, id string) error {
	post, err := f.source.FetchItem(ctx, id)
	if err != nil {
		return err
	}

	return f.processor.Process(ctx, chatID, post)
}

func (f *Fetcher) resolveArgs(args model.SubscriptionArgs) (int, model.TimePeriod, *model.MediaKind) {
	limit := f.defaults.Limit
	if args.Limit != nil {
		limit = *args.Limit
	}

	period := f.defaults.Time
	if args.Time != nil {
		period = *args.Time
	}

	filter := f.defaults.Filter
	if args.Filter != nil {
		filter = args.Filter
	}

	return limit, period, filter
}

func matches(post model.Post, filter *model.MediaKind) bool {
	return filter == nil || post.Kind == *filter
}
