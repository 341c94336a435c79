package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"tgreddit/internal/bot"
	"tgreddit/internal/config"
	"tgreddit/internal/fetcher"
	"tgreddit/internal/media"
	"tgreddit/internal/metrics"
	"tgreddit/internal/notifier"
	"tgreddit/internal/source"
	"tgreddit/internal/storage"
	"tgreddit/internal/telegram"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        config.Config
	db         *storage.Handle
	reddit     *source.RedditSource
	client     *telegram.Client
	notifier   *notifier.Notifier
	fetcher    *fetcher.Fetcher
	downloader *media.HTTPDownloader
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}
	cfg.SetupLogging()

	return cfg, nil
}

func openStorage(ctx context.Context, cfg config.Config) (*storage.Handle, error) {
	db, err := storage.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	db, err := openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	api, err := telegram.Connect(ctx, cfg.TelegramBotToken, cfg.TelegramEndpoint)
	if err != nil {
		db.Close()
		return nil, err
	}

	downloader, err := media.NewHTTPDownloader(source.NewHTTPClient("download"), source.UserAgent)
	if err != nil {
		db.Close()
		return nil, err
	}

	var summarizer media.Summarizer
	if cfg.LinkSummaries {
		summarizer = media.NewReadabilitySummarizer(source.NewHTTPClient("summary"), source.UserAgent)
	}

	var (
		reddit   = source.NewRedditSource(source.NewHTTPClient("reddit"), cfg.RedditBaseURL)
		client   = telegram.New(api)
		seen     = storage.NewSeenStorage(db)
		resolver = media.NewResolver(downloader, media.NewYtDlp(cfg.YtDlpPath), summarizer)
		n        = notifier.New(
			client,
			seen,
			storage.NewMediaStorage(db),
			storage.NewChatStorage(db),
			resolver,
			cfg.LinksBaseURL,
		)
		f = fetcher.New(
			reddit,
			storage.NewSubscriptionStorage(db),
			seen,
			n,
			fetcher.Defaults{Limit: cfg.DefaultLimit, Time: cfg.Time(), Filter: cfg.Filter()},
			cfg.SkipInitialSend,
			cfg.CheckInterval,
		)
	)

	return &app{
		cfg:        cfg,
		db:         db,
		reddit:     reddit,
		client:     client,
		notifier:   n,
		fetcher:    f,
		downloader: downloader,
	}, nil
}

func (a *app) Close() {
	if err := a.downloader.Close(); err != nil {
		log.WithError(err).Warn("failed to remove download dir")
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("failed to close database")
	}
}

func (a *app) newBot() *bot.Bot {
	var (
		subs  = storage.NewSubscriptionStorage(a.db)
		chats = storage.NewChatStorage(a.db)
	)

	b := bot.New(a.client.API(), a.client, a.cfg.IsAuthorized)
	b.RegisterCmdView("help", bot.ViewCmdHelp())
	b.RegisterCmdView("sub", bot.ViewCmdSub(a.reddit, subs))
	b.RegisterCmdView("unsub", bot.ViewCmdUnsub(subs))
	b.RegisterCmdView("listsubs", bot.ViewCmdListSubs(subs))
	b.RegisterCmdView("get", bot.ViewCmdGet(a.fetcher))
	b.RegisterCmdView("registerchannel", bot.ViewCmdRegisterChannel(chats))
	b.RegisterCmdView("reposttochannel", bot.ViewCmdRepostToChannel(a.notifier))
	b.RegisterLinkView(bot.ViewVideoLink(a.notifier))
	b.RegisterCallback(bot.CallbackRepost(a.notifier))

	return b
}

func runBot(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	b := a.newBot()
	if err := b.PublishCommands(ctx); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	if len(cfg.AuthorizedUserIDs) == 0 {
		log.Warn("no authorized users configured, every update will be ignored")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := b.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to run bot: %w", err)
		}
		log.Info("bot has stopped")
		return nil
	})

	g.Go(func() error {
		if err := a.fetcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to run fetcher: %w", err)
		}
		log.Info("fetcher has stopped")
		return nil
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			if err := metrics.Serve(gctx, cfg.MetricsAddr, a.db); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("failed to serve metrics: %w", err)
			}
			return nil
		})
	}

	// Any component failing brings the others down with it.
	err = g.Wait()
	cancel()

	return err
}

func migrateDB(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	db, err := openStorage(c.Context, cfg)
	if err != nil {
		return err
	}

	return db.Close()
}

func debugPost(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	id := c.String("id")
	chatID := c.Int64("chat-id")

	if chatID == 0 {
		reddit := source.NewRedditSource(source.NewHTTPClient("reddit"), cfg.RedditBaseURL)
		post, err := reddit.FetchItem(c.Context, id)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(post, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "%s\nkind: %s\n", out, post.Kind)

		return nil
	}

	a, err := newApp(c.Context, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.fetcher.DeliverItem(c.Context, chatID, id)
}

func main() {
	app := &cli.App{
		Name:  "tgreddit",
		Usage: "deliver top posts of subreddits to telegram chats",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to an hcl config file",
				EnvVars: []string{"TGREDDIT_CONFIG"},
			},
		},
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the bot and the subscription poller",
				Action: runBot,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations and exit",
				Action: migrateDB,
			},
			{
				Name:  "debug-post",
				Usage: "fetch a single post, and deliver it when a chat is given",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "reddit post id", Required: true},
					&cli.Int64Flag{Name: "chat-id", Usage: "chat to deliver the post to"},
				},
				Action: debugPost,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("tgreddit failed")
	}
}
