package source

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	log "github.com/sirupsen/logrus"
)

const UserAgent = "tgreddit/1.0"

// NewHTTPClient returns a retrying client that logs through logrus.
func NewHTTPClient(component string) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 10 * time.Second
	client.HTTPClient.Timeout = 2 * time.Minute
	client.Logger = leveledLogger{entry: log.WithField("component", component)}

	return client
}

// withoutRedirects returns a client with the settings of client that
// reports redirects to the caller instead of following them.
func withoutRedirects(client *retryablehttp.Client) *retryablehttp.Client {
	clone := retryablehttp.NewClient()
	clone.RetryMax = client.RetryMax
	clone.RetryWaitMin = client.RetryWaitMin
	clone.RetryWaitMax = client.RetryWaitMax
	clone.Logger = client.Logger
	clone.HTTPClient.Timeout = client.HTTPClient.Timeout
	clone.HTTPClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return clone
}

type leveledLogger struct {
	entry *log.Entry
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (l leveledLogger) fields(keysAndValues []interface{}) *log.Entry {
	fields := log.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}

	return l.entry.WithFields(fields)
}

func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Error(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Info(msg)
}

// Debug is where retryablehttp reports every request, keep it at trace.
func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Trace(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.fields(keysAndValues).Warn(msg)
}
