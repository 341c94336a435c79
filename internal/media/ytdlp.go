package media

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	log "github.com/sirupsen/logrus"

	"tgreddit/internal/model"
)

// outputTemplate makes yt-dlp write the dimensions into the file name so
// telegram can be told the aspect ratio.
const outputTemplate = "%(title)s_[%(id)s]_%(width)sx%(height)s.%(ext)s"

var outputNameRe = regexp.MustCompile(`^(?P<title>.*)_\[(?P<id>[^\]]+)\]_(?P<width>\d+)x(?P<height>\d+)\.`)

var ErrUnparsableOutput = errors.New("unparsable yt-dlp output name")

// VideoFile is a transcoded video. Close removes its directory.
type VideoFile struct {
	model.Video
	dir string
}

func (v *VideoFile) Close() error {
	return os.RemoveAll(v.dir)
}

// YtDlp runs the yt-dlp binary.
type YtDlp struct {
	binary string
}

func NewYtDlp(binary string) *YtDlp {
	if binary == "" {
		binary = "yt-dlp"
	}

	return &YtDlp{binary: binary}
}

func ytdlpArgs(dir, url string) []string {
	return []string{
		"--paths", dir,
		"--output", outputTemplate,
		"-S", "res,ext:mp4:m4a",
		"--recode", "mp4",
		url,
	}
}

// Transcode downloads url into a fresh directory. It succeeds only when
// yt-dlp exits cleanly and leaves exactly one file behind.
func (y *YtDlp) Transcode(ctx context.Context, url string) (*VideoFile, error) {
	dir, err := os.MkdirTemp("", "tgreddit-video-")
	if err != nil {
		return nil, fmt.Errorf("error creating video dir: %w", err)
	}

	video, err := y.run(ctx, dir, url)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	return &VideoFile{Video: video, dir: dir}, nil
}

func (y *YtDlp) run(ctx context.Context, dir, url string) (model.Video, error) {
	args := ytdlpArgs(dir, url)
	logger := log.WithFields(log.Fields{"url": url, "binary": y.binary})
	logger.WithField("args", args).Info("running yt-dlp")

	cmd := exec.CommandContext(ctx, y.binary, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(pr)
		for scanner.Scan() {
			logger.Debug(scanner.Text())
		}
		io.Copy(io.Discard, pr)
	}()

	runErr := cmd.Run()
	pw.Close()
	<-done

	if runErr != nil {
		return model.Video{}, fmt.Errorf("yt-dlp failed for %s: %w", url, runErr)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return model.Video{}, err
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	if len(files) != 1 {
		return model.Video{}, fmt.Errorf("yt-dlp wrote %d files for %s, expected one", len(files), url)
	}

	video, err := parseOutputName(files[0])
	if err != nil {
		return model.Video{}, err
	}
	video.Path = filepath.Join(dir, files[0])
	video.URL = url

	return video, nil
}

// parseOutputName reads title, id and dimensions back out of a file name
// written with outputTemplate.
func parseOutputName(name string) (model.Video, error) {
	m := outputNameRe.FindStringSubmatch(name)
	if m == nil {
		return model.Video{}, fmt.Errorf("%w: %q", ErrUnparsableOutput, name)
	}

	width, err := strconv.Atoi(m[outputNameRe.SubexpIndex("width")])
	if err != nil {
		return model.Video{}, fmt.Errorf("%w: %q", ErrUnparsableOutput, name)
	}
	height, err := strconv.Atoi(m[outputNameRe.SubexpIndex("height")])
	if err != nil {
		return model.Video{}, fmt.Errorf("%w: %q", ErrUnparsableOutput, name)
	}

	return model.Video{
		Title:  m[outputNameRe.SubexpIndex("title")],
		ID:     m[outputNameRe.SubexpIndex("id")],
		Width:  width,
		Height: height,
	}, nil
}
