package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"evater/api/internal/llm"
	"evater/api/internal/util"
)

// ErrBadImage marks an image reference that cannot be turned into bytes.
var ErrBadImage = errors.New("bad image")

const (
	defaultMaxBytes    = 15 << 20
	defaultConcurrency = 4
)

// Fetcher turns image_url entries (http(s) URLs, data: URLs or raw base64)
// into image bytes, keeping the submission order.
type Fetcher struct {
	httpc       *http.Client
	MaxBytes    int64
	MaxPixels   int
	Concurrency int
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		httpc:       &http.Client{Timeout: timeout},
		MaxBytes:    defaultMaxBytes,
		MaxPixels:   DefaultMaxPixels,
		Concurrency: defaultConcurrency,
	}
}

func (f *Fetcher) WithHTTPClient(c *http.Client) *Fetcher {
	f.httpc = c
	return f
}

func (f *Fetcher) Fetch(ctx context.Context, refs []string) ([]llm.Image, error) {
	out := make([]llm.Image, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	if f.Concurrency > 0 {
		g.SetLimit(f.Concurrency)
	}
	for i, ref := range refs {
		g.Go(func() error {
			img, err := f.One(gctx, ref)
			if err != nil {
				return fmt.Errorf("image %d: %w", i, err)
			}
			out[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return out, nil
}

func (f *Fetcher) One(ctx context.Context, ref string) (llm.Image, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return llm.Image{}, fmt.Errorf("%w: empty reference", ErrBadImage)
	}

	var (
		data []byte
		hint string
		err  error
	)
	low := strings.ToLower(ref)
	if strings.HasPrefix(low, "http://") || strings.HasPrefix(low, "https://") {
		data, hint, err = f.download(ctx, ref)
	} else {
		data, hint, err = util.DecodeBase64MaybeDataURL(ref)
		if err != nil {
			err = fmt.Errorf("%w: %v", ErrBadImage, err)
		}
	}
	if err != nil {
		return llm.Image{}, err
	}
	if len(data) == 0 {
		return llm.Image{}, fmt.Errorf("%w: empty image", ErrBadImage)
	}

	data, mime := Shrink(data, f.MaxPixels, util.PickMIME("", hint, data))
	return llm.Image{Data: data, MIME: mime}, nil
}

func (f *Fetcher) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		return nil, "", fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", fmt.Errorf("%w: status %d: %s", ErrBadImage, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, f.MaxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(b)) > f.MaxBytes {
		return nil, "", fmt.Errorf("%w: larger than %d bytes", ErrBadImage, f.MaxBytes)
	}
	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") && mime != "application/pdf" {
		mime = ""
	}
	return b, strings.TrimSpace(mime), nil
}
