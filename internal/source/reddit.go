package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"tgreddit/internal/model"
)

const DefaultBaseURL = "https://www.reddit.com"

var ErrNoSuchSubreddit = errors.New("no such subreddit")

// RedditSource reads subreddit listings through the public JSON API.
type RedditSource struct {
	client     *retryablehttp.Client
	noRedirect *retryablehttp.Client
	baseURL    string

	about *lru.Cache[string, model.SubredditAbout]
	items *lru.Cache[string, model.Post]
}

func NewRedditSource(client *retryablehttp.Client, baseURL string) *RedditSource {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	about, _ := lru.New[string, model.SubredditAbout](256)
	items, _ := lru.New[string, model.Post](1024)

	return &RedditSource{
		client:     client,
		noRedirect: withoutRedirects(client),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		about:      about,
		items:      items,
	}
}

// FetchTop returns the top posts of the subreddit in listing order.
func (s *RedditSource) FetchTop(ctx context.Context, subreddit string, limit int, period model.TimePeriod) ([]model.Post, error) {
	log.WithFields(log.Fields{
		"subreddit": subreddit,
		"limit":     limit,
		"time":      period,
	}).Info("getting top posts")

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("t", period.String())

	var listing listingResponse
	if err := s.getJSON(ctx, s.client, "/r/"+url.PathEscape(subreddit)+"/top.json", query, &listing); err != nil {
		return nil, fmt.Errorf("error fetching top posts of r/%s: %w", subreddit, err)
	}

	return lo.Map(listing.Data.Children, func(child listingChild, _ int) model.Post {
		return child.Data.toModel()
	}), nil
}

// FetchItem fetches a single post. Single item responses carry type hints
// that listings sometimes omit.
func (s *RedditSource) FetchItem(ctx context.Context, id string) (model.Post, error) {
	if post, ok := s.items.Get(id); ok {
		return post, nil
	}

	log.WithField("post_id", id).Info("getting post")

	query := url.Values{}
	query.Set("id", "t3_"+id)

	var listing listingResponse
	if err := s.getJSON(ctx, s.client, "/api/info.json", query, &listing); err != nil {
		return model.Post{}, fmt.Errorf("error fetching post %s: %w", id, err)
	}
	if len(listing.Data.Children) == 0 {
		return model.Post{}, fmt.Errorf("no post %s in response", id)
	}

	post := listing.Data.Children[0].Data.toModel()
	s.items.Add(id, post)

	return post, nil
}

// FetchFeedMeta returns the subreddit metadata or ErrNoSuchSubreddit.
// Reddit redirects unknown subreddits to a search page.
func (s *RedditSource) FetchFeedMeta(ctx context.Context, subreddit string) (model.SubredditAbout, error) {
	key := strings.ToLower(subreddit)
	if about, ok := s.about.Get(key); ok {
		return about, nil
	}

	log.WithField("subreddit", subreddit).Info("getting subreddit about")

	var resp aboutResponse
	err := s.getJSON(ctx, s.noRedirect, "/r/"+url.PathEscape(subreddit)+"/about.json", nil, &resp)
	if err != nil {
		return model.SubredditAbout{}, err
	}
	if resp.Data.DisplayName == "" {
		return model.SubredditAbout{}, ErrNoSuchSubreddit
	}

	about := model.SubredditAbout{
		DisplayName: resp.Data.DisplayName,
		Title:       resp.Data.Title,
		Over18:      resp.Data.Over18,
	}
	s.about.Add(key, about)

	return about, nil
}

func (s *RedditSource) getJSON(ctx context.Context, client *retryablehttp.Client, path string, query url.Values, dst any) error {
	u := s.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusFound, resp.StatusCode == http.StatusNotFound:
		return ErrNoSuchSubreddit
	case resp.StatusCode >= 300:
		return fmt.Errorf("unexpected status %s from %s", resp.Status, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("error decoding %s: %w", path, err)
	}

	return nil
}

type listingResponse struct {
	Data struct {
		Children []listingChild `json:"children"`
	} `json:"data"`
}

type listingChild struct {
	Kind string     `json:"kind"`
	Data redditPost `json:"data"`
}

type aboutResponse struct {
	Data struct {
		DisplayName string `json:"display_name"`
		Title       string `json:"title"`
		Over18      bool   `json:"over18"`
	} `json:"data"`
}

type redditPost struct {
	ID                  string                 `json:"id"`
	Subreddit           string                 `json:"subreddit"`
	Title               string                 `json:"title"`
	CreatedUTC          float64                `json:"created_utc"`
	Permalink           string                 `json:"permalink"`
	URL                 string                 `json:"url"`
	PostHint            string                 `json:"post_hint"`
	IsSelf              bool                   `json:"is_self"`
	IsVideo             bool                   `json:"is_video"`
	IsGallery           bool                   `json:"is_gallery"`
	SelfText            string                 `json:"selftext"`
	Ups                 int                    `json:"ups"`
	GalleryData         *galleryData           `json:"gallery_data"`
	MediaMetadata       map[string]mediaObject `json:"media_metadata"`
	CrosspostParentList []redditPost           `json:"crosspost_parent_list"`
}

type galleryData struct {
	Items []struct {
		MediaID string `json:"media_id"`
	} `json:"items"`
}

type mediaObject struct {
	Status string `json:"status"`
	S      struct {
		U   string `json:"u"`
		GIF string `json:"gif"`
		X   int    `json:"x"`
		Y   int    `json:"y"`
	} `json:"s"`
}

func (p redditPost) toModel() model.Post {
	post := model.Post{
		ID:        p.ID,
		Subreddit: p.Subreddit,
		Title:     p.Title,
		Created:   time.Unix(int64(p.CreatedUTC), 0).UTC(),
		Permalink: p.Permalink,
		URL:       p.URL,
		PostHint:  p.PostHint,
		IsSelf:    p.IsSelf,
		IsVideo:   p.IsVideo,
		IsGallery: p.IsGallery,
		SelfText:  p.SelfText,
		Ups:       p.Ups,
		Gallery:   p.gallery(),
	}
	post.Kind = model.Classify(post)

	return post
}

// gallery returns the gallery items in gallery order. Crossposts carry
// the gallery on their parent.
func (p redditPost) gallery() []model.GalleryItem {
	src := p
	if src.GalleryData == nil && len(p.CrosspostParentList) > 0 {
		src = p.CrosspostParentList[0]
	}
	if src.GalleryData == nil {
		return nil
	}

	var items []model.GalleryItem
	for _, item := range src.GalleryData.Items {
		media, ok := src.MediaMetadata[item.MediaID]
		if !ok {
			continue
		}

		u := media.S.U
		if u == "" {
			u = media.S.GIF
		}
		if u == "" {
			continue
		}

		items = append(items, model.GalleryItem{
			MediaID: item.MediaID,
			URL:     strings.ReplaceAll(u, "&amp;", "&"),
			Width:   media.S.X,
			Height:  media.S.Y,
		})
	}

	return items
}

// PermalinkURL joins a post permalink with the link base, defaulting to
// reddit itself.
func PermalinkURL(permalink, linksBaseURL string) string {
	if linksBaseURL == "" {
		linksBaseURL = DefaultBaseURL
	}

	return strings.TrimSuffix(linksBaseURL, "/") + permalink
}

func SubredditURL(subreddit, linksBaseURL string) string {
	return PermalinkURL("/r/"+subreddit, linksBaseURL)
}

// OldRedditURL rewrites the host of a reddit url to old.reddit.com.
func OldRedditURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Host = "old.reddit.com"

	return u.String()
}
