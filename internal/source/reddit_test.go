package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgreddit/internal/model"
)

const topListing = `{
  "kind": "Listing",
  "data": {
    "children": [
      {"kind": "t3", "data": {
        "id": "abc", "subreddit": "aww", "title": "A cat", "created_utc": 1700000000.0,
        "permalink": "/r/aww/comments/abc/a_cat/", "url": "https://i.redd.it/abc.jpg",
        "post_hint": "image", "is_self": false, "is_video": false, "ups": 10
      }},
      {"kind": "t3", "data": {
        "id": "gal", "subreddit": "aww", "title": "Many cats",
        "permalink": "/r/aww/comments/gal/many_cats/", "url": "https://www.reddit.com/gallery/gal",
        "is_gallery": true,
        "gallery_data": {"items": [{"media_id": "m2"}, {"media_id": "m1"}, {"media_id": "missing"}]},
        "media_metadata": {
          "m1": {"status": "valid", "s": {"u": "https://preview.redd.it/m1.jpg?width=10&amp;s=x", "x": 10, "y": 20}},
          "m2": {"status": "valid", "s": {"gif": "https://preview.redd.it/m2.gif?a=1&amp;b=2", "x": 30, "y": 40}}
        }
      }},
      {"kind": "t3", "data": {
        "id": "xp", "subreddit": "aww", "title": "Crossposted gallery", "is_gallery": true,
        "crosspost_parent_list": [{
          "id": "orig",
          "gallery_data": {"items": [{"media_id": "p1"}]},
          "media_metadata": {"p1": {"status": "valid", "s": {"u": "https://preview.redd.it/p1.jpg", "x": 1, "y": 1}}}
        }]
      }},
      {"kind": "t3", "data": {"id": "unk", "subreddit": "aww", "title": "No hint", "url": "https://example.com"}}
    ]
  }
}`

func newTestSource(t *testing.T, handler http.Handler) *RedditSource {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewHTTPClient("test")
	client.RetryMax = 0

	return NewRedditSource(client, srv.URL)
}

func TestFetchTop(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/r/aww/top.json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "week", r.URL.Query().Get("t"))
		assert.Equal(t, UserAgent, r.Header.Get("User-Agent"))

		w.Write([]byte(topListing))
	}))

	posts, err := src.FetchTop(context.Background(), "aww", 1, model.PeriodWeek)
	require.NoError(t, err)
	require.Len(t, posts, 4)

	assert.Equal(t, "abc", posts[0].ID)
	assert.Equal(t, model.KindImage, posts[0].Kind)
	assert.Equal(t, int64(1700000000), posts[0].Created.Unix())
	assert.Equal(t, "/r/aww/comments/abc/a_cat/", posts[0].Permalink)

	assert.Equal(t, model.KindGallery, posts[1].Kind)
	assert.Equal(t, []model.GalleryItem{
		{MediaID: "m2", URL: "https://preview.redd.it/m2.gif?a=1&b=2", Width: 30, Height: 40},
		{MediaID: "m1", URL: "https://preview.redd.it/m1.jpg?width=10&s=x", Width: 10, Height: 20},
	}, posts[1].Gallery)

	require.Len(t, posts[2].Gallery, 1)
	assert.Equal(t, "p1", posts[2].Gallery[0].MediaID)

	assert.Equal(t, model.KindUnknown, posts[3].Kind)
}

func TestFetchTopServerError(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := src.FetchTop(context.Background(), "aww", 1, model.PeriodDay)
	assert.Error(t, err)
}

func TestFetchItemIsCached(t *testing.T) {
	var hits atomic.Int32
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "/api/info.json", r.URL.Path)
		assert.Equal(t, "t3_v6nu75", r.URL.Query().Get("id"))

		w.Write([]byte(`{"data": {"children": [{"kind": "t3", "data": {
			"id": "v6nu75", "subreddit": "videos", "title": "A video", "post_hint": "hosted:video", "is_video": true
		}}]}}`))
	}))

	for i := 0; i < 2; i++ {
		post, err := src.FetchItem(context.Background(), "v6nu75")
		require.NoError(t, err)
		assert.Equal(t, model.KindVideo, post.Kind)
	}

	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchItemEmpty(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": {"children": []}}`))
	}))

	_, err := src.FetchItem(context.Background(), "nope")
	assert.Error(t, err)
}

func TestFetchFeedMeta(t *testing.T) {
	src := newTestSource(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/r/pics/about.json":
			w.Write([]byte(`{"kind": "t5", "data": {"display_name": "pics", "title": "Pictures", "over18": false}}`))
		default:
			http.Redirect(w, r, "/subreddits/search.json?q=x", http.StatusFound)
		}
	}))

	about, err := src.FetchFeedMeta(context.Background(), "pics")
	require.NoError(t, err)
	assert.Equal(t, "pics", about.DisplayName)
	assert.Equal(t, "Pictures", about.Title)

	cached, err := src.FetchFeedMeta(context.Background(), "PICS")
	require.NoError(t, err)
	assert.Equal(t, about, cached)

	_, err = src.FetchFeedMeta(context.Background(), "doesnotexist")
	assert.ErrorIs(t, err, ErrNoSuchSubreddit)
}

func TestLinkHelpers(t *testing.T) {
	assert.Equal(t, "https://www.reddit.com/r/aww/comments/abc/", PermalinkURL("/r/aww/comments/abc/", ""))
	assert.Equal(t, "https://teddit.net/r/aww/comments/abc/", PermalinkURL("/r/aww/comments/abc/", "https://teddit.net/"))
	assert.Equal(t, "https://www.reddit.com/r/aww", SubredditURL("aww", ""))
	assert.Equal(t, "https://old.reddit.com/r/aww/comments/abc/", OldRedditURL("https://www.reddit.com/r/aww/comments/abc/"))
}
