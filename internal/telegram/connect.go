package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
)

// Connect authenticates the bot. Network failures are retried, rejected
// tokens are not.
func Connect(ctx context.Context, token, endpoint string) (*tgbotapi.BotAPI, error) {
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}

	var api *tgbotapi.BotAPI
	backoff := retry.WithMaxRetries(5, retry.NewFibonacci(time.Second))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		a, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 90 * time.Second})
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			return err
		}
		if err != nil {
			log.WithError(err).Warn("telegram not reachable, retrying")
			return retry.RetryableError(err)
		}
		api = a

		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithField("username", api.Self.UserName).Info("authorized on telegram")

	return api, nil
}
