package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgreddit/internal/model"
)

func TestParseOutputName(t *testing.T) {
	tests := []struct {
		name     string
		expected model.Video
		ok       bool
	}{
		{name: "video_[abc]_1920x1080.mp4", expected: model.Video{Title: "video", ID: "abc", Width: 1920, Height: 1080}, ok: true},
		{name: "cool_video_[x-1]_1280x720.mp4", expected: model.Video{Title: "cool_video", ID: "x-1", Width: 1280, Height: 720}, ok: true},
		{name: "awesome#video!_[id]_640x480.mp4", expected: model.Video{Title: "awesome#video!", ID: "id", Width: 640, Height: 480}, ok: true},
		{name: "_[id]_1920x1080.mp4", expected: model.Video{Title: "", ID: "id", Width: 1920, Height: 1080}, ok: true},
		{name: "someothervideo_[id]_asdfax1080.mp4"},
		{name: "video_[id]_1920_1080.mp4"},
		{name: "video_1920x1080.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			video, err := parseOutputName(tt.name)
			if !tt.ok {
				assert.ErrorIs(t, err, ErrUnparsableOutput)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, video)
		})
	}
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported")
	}

	path := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))

	return path
}

func TestYtDlpTranscode(t *testing.T) {
	binary := writeScript(t, `echo "[download] fake"; touch "$2/cool_video_[abc123]_1280x720.mp4"`)

	video, err := NewYtDlp(binary).Transcode(context.Background(), "https://v.redd.it/abc123")
	require.NoError(t, err)

	assert.Equal(t, "cool_video", video.Title)
	assert.Equal(t, "abc123", video.ID)
	assert.Equal(t, 1280, video.Width)
	assert.Equal(t, 720, video.Height)
	assert.Equal(t, "https://v.redd.it/abc123", video.URL)
	assert.FileExists(t, video.Path)

	require.NoError(t, video.Close())
	assert.NoFileExists(t, video.Path)
}

func TestYtDlpFailures(t *testing.T) {
	tests := map[string]string{
		"non zero exit":   `touch "$2/video_[a]_1x1.mp4"; exit 1`,
		"no output":       `true`,
		"two outputs":     `touch "$2/a_[a]_1x1.mp4" "$2/b_[b]_1x1.mp4"`,
		"unparsable name": `touch "$2/video.mp4"`,
	}

	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewYtDlp(writeScript(t, body)).Transcode(context.Background(), "https://example.com/v")
			assert.Error(t, err)
		})
	}
}

type fakeDownloader struct {
	dir   string
	fail  map[string]bool
	calls []string
}

func (d *fakeDownloader) Download(_ context.Context, url string) (*LocalFile, error) {
	d.calls = append(d.calls, url)
	if d.fail[url] {
		return nil, errors.New("boom")
	}

	path := filepath.Join(d.dir, filepath.Base(url))
	if err := os.WriteFile(path, []byte(url), 0o644); err != nil {
		return nil, err
	}

	return &LocalFile{Path: path}, nil
}

type fakeTranscoder struct {
	calls int
}

func (f *fakeTranscoder) Transcode(context.Context, string) (*VideoFile, error) {
	f.calls++
	return nil, errors.New("not expected")
}

func TestResolveGalleryPartialFailure(t *testing.T) {
	downloader := &fakeDownloader{dir: t.TempDir(), fail: map[string]bool{"https://i.redd.it/2.jpg": true}}
	resolver := NewResolver(downloader, &fakeTranscoder{}, nil)

	post := model.Post{
		ID:   "gal",
		Kind: model.KindGallery,
		Gallery: []model.GalleryItem{
			{MediaID: "1", URL: "https://i.redd.it/1.jpg"},
			{MediaID: "2", URL: "https://i.redd.it/2.jpg"},
			{MediaID: "3", URL: "https://i.redd.it/3.jpg"},
		},
	}

	artifacts, err := resolver.Resolve(context.Background(), post)
	require.NoError(t, err)
	defer artifacts.Close()

	require.Len(t, artifacts.Gallery, 2)
	assert.Equal(t, "1.jpg", filepath.Base(artifacts.Gallery[0].Path))
	assert.Equal(t, "3.jpg", filepath.Base(artifacts.Gallery[1].Path))
}

func TestResolveGalleryTruncates(t *testing.T) {
	downloader := &fakeDownloader{dir: t.TempDir()}
	resolver := NewResolver(downloader, &fakeTranscoder{}, nil)

	post := model.Post{ID: "big", Kind: model.KindGallery}
	for i := 0; i < 12; i++ {
		post.Gallery = append(post.Gallery, model.GalleryItem{URL: "https://i.redd.it/" + string(rune('a'+i)) + ".jpg"})
	}

	artifacts, err := resolver.Resolve(context.Background(), post)
	require.NoError(t, err)
	defer artifacts.Close()

	assert.Len(t, artifacts.Gallery, MaxGroupSize)
	assert.Len(t, downloader.calls, MaxGroupSize)
}

func TestResolveGalleryFailures(t *testing.T) {
	downloader := &fakeDownloader{dir: t.TempDir(), fail: map[string]bool{"https://i.redd.it/1.jpg": true}}
	resolver := NewResolver(downloader, &fakeTranscoder{}, nil)

	_, err := resolver.Resolve(context.Background(), model.Post{ID: "empty", Kind: model.KindGallery})
	assert.ErrorIs(t, err, ErrNoGalleryItems)

	_, err = resolver.Resolve(context.Background(), model.Post{
		ID:      "allfail",
		Kind:    model.KindGallery,
		Gallery: []model.GalleryItem{{URL: "https://i.redd.it/1.jpg"}},
	})
	assert.Error(t, err)
}

func TestResolveImage(t *testing.T) {
	tests := []struct {
		url      string
		animated bool
		fetched  string
	}{
		{url: "https://i.redd.it/cat.jpg", fetched: "https://i.redd.it/cat.jpg"},
		{url: "https://i.redd.it/cat.gif", animated: true, fetched: "https://i.redd.it/cat.gif"},
		{url: "https://i.imgur.com/cat.gifv", animated: true, fetched: "https://i.imgur.com/cat.mp4"},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			downloader := &fakeDownloader{dir: t.TempDir()}
			transcoder := &fakeTranscoder{}
			resolver := NewResolver(downloader, transcoder, nil)

			artifacts, err := resolver.Resolve(context.Background(), model.Post{ID: "img", Kind: model.KindImage, URL: tt.url})
			require.NoError(t, err)

			assert.Equal(t, tt.animated, artifacts.Animated)
			assert.Equal(t, []string{tt.fetched}, downloader.calls)
			assert.Zero(t, transcoder.calls)

			path := artifacts.Photo.Path
			artifacts.Close()
			assert.NoFileExists(t, path)
		})
	}
}

type fakeSummarizer struct {
	err error
}

func (f fakeSummarizer) Summarize(context.Context, string) (string, error) {
	return "summary", f.err
}

func TestResolveTextKinds(t *testing.T) {
	resolver := NewResolver(&fakeDownloader{dir: t.TempDir()}, &fakeTranscoder{}, fakeSummarizer{})

	artifacts, err := resolver.Resolve(context.Background(), model.Post{Kind: model.KindLink, URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, "summary", artifacts.Excerpt)

	artifacts, err = resolver.Resolve(context.Background(), model.Post{Kind: model.KindSelfText, SelfText: "Hello &amp; <b>bye</b>"})
	require.NoError(t, err)
	assert.Equal(t, "Hello & bye", artifacts.Excerpt)

	failing := NewResolver(&fakeDownloader{dir: t.TempDir()}, &fakeTranscoder{}, fakeSummarizer{err: errors.New("nope")})
	artifacts, err = failing.Resolve(context.Background(), model.Post{Kind: model.KindUnknown, URL: "https://example.com"})
	require.NoError(t, err)
	assert.Empty(t, artifacts.Excerpt)
	assert.Equal(t, model.KindUnknown, artifacts.Kind)
}

func TestExcerptTruncates(t *testing.T) {
	excerpt := Excerpt(strings.Repeat("word ", 200))

	assert.True(t, strings.HasSuffix(excerpt, "…"))
	assert.LessOrEqual(t, len([]rune(excerpt)), maxExcerptLen+1)
}

func TestHTTPDownloader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.jpg" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("image bytes"))
	}))
	defer srv.Close()

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil

	downloader, err := NewHTTPDownloader(client, "test")
	require.NoError(t, err)
	defer downloader.Close()

	file, err := downloader.Download(context.Background(), srv.URL+"/cat.gif?width=10")
	require.NoError(t, err)
	assert.Equal(t, "gif", file.Ext())

	content, err := os.ReadFile(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(content))

	require.NoError(t, file.Close())
	assert.NoFileExists(t, file.Path)

	_, err = downloader.Download(context.Background(), srv.URL+"/missing.jpg")
	assert.Error(t, err)
}

func TestReadabilitySummarizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Page</title><meta name="description" content="A short description of the page."></head>
			<body><article><h1>Page</h1>` + strings.Repeat(`<p>Some long article text that readability should find, with enough words, commas, and sentences to be scored as content.</p>`, 10) + `</article></body></html>`))
	}))
	defer srv.Close()

	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil

	summary, err := NewReadabilitySummarizer(client, "test").Summarize(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotEmpty(t, summary)
}
