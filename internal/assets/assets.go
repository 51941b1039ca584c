package assets

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/andresmejia3/human4d/internal/logger"
)

// Fetcher downloads model weights into a local cache directory.
type Fetcher struct {
	client   *resty.Client
	progress io.Writer
}

// NewFetcher returns a Fetcher that reports progress to w (nil disables the bar).
func NewFetcher(ctx context.Context, w io.Writer) *Fetcher {
	r := resty.New().
		SetTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
		}).
		SetRetryCount(0)
	if log, err := logger.GetZapLogger(ctx); err == nil {
		r.SetLogger(log.Sugar())
	}
	return &Fetcher{client: r, progress: w}
}

// DetectorURL is where a detector checkpoint named name is published.
func DetectorURL(base, name string) string {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + name
}

// Fetch makes sure every file in files (name -> URL) exists in dir.
// Files already present are left untouched.
func (f *Fetcher) Fetch(ctx context.Context, dir string, files map[string]string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	log, _ := logger.GetZapLogger(ctx)
	for _, name := range names {
		dst := filepath.Join(dir, name)
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		log.Info("Downloading asset", zap.String("name", name), zap.String("url", files[name]))
		if err := f.download(ctx, files[name], dst); err != nil {
			return fmt.Errorf("failed to download %s: %w", name, err)
		}
	}
	return nil
}

// download streams url into a temp file next to dst, then renames it into place.
func (f *Fetcher) download(ctx context.Context, url, dst string) error {
	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(url)
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return fmt.Errorf("unexpected status %s", resp.Status())
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	var w io.Writer = tmp
	if f.progress != nil {
		bar := progressbar.NewOptions64(resp.RawResponse.ContentLength,
			progressbar.OptionSetDescription("⬇️  "+filepath.Base(dst)),
			progressbar.OptionSetWriter(f.progress),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		w = io.MultiWriter(tmp, bar)
	}

	if _, err := io.Copy(w, body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
