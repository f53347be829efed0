package installer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	apperrors "github.com/Lynx96-creator/ets2-mod-api/internal/errors"
)

// Fetcher opens the remote content of a file id. The returned size is -1 when
// the length is unknown.
type Fetcher interface {
	Fetch(ctx context.Context, contentID string) (io.ReadCloser, int64, error)
}

// maxInterstitialSize bounds how much of an HTML answer is inspected for a
// confirmation token
const maxInterstitialSize = 1 << 20

var (
	confirmTokenPattern = regexp.MustCompile(`confirm=([0-9A-Za-z_\-]+)`)
	uuidFieldPattern    = regexp.MustCompile(`name="uuid" value="([0-9A-Za-z_\-]+)"`)
)

// HTTPFetcher downloads publicly shared files through the public download
// endpoint. Large files answer with a warning page first; the fetcher follows
// it once using the confirmation token the page carries.
type HTTPFetcher struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewHTTPFetcher creates a fetcher for baseURL, e.g. https://drive.google.com/uc
func NewHTTPFetcher(client *http.Client, baseURL string, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client:  client,
		baseURL: baseURL,
		logger:  logger.With(slog.String("component", "http_fetcher")),
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, contentID string) (io.ReadCloser, int64, error) {
	resp, err := f.get(ctx, contentID, nil, nil)
	if err != nil {
		return nil, 0, err
	}
	if !isHTML(resp) {
		return resp.Body, resp.ContentLength, nil
	}

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxInterstitialSize))
	resp.Body.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read download page: %w", err)
	}

	params := confirmParams(page, resp.Cookies())
	if params == nil {
		// Not an interstitial. The caller's size check decides what the page is worth.
		return io.NopCloser(bytes.NewReader(page)), int64(len(page)), nil
	}

	f.logger.DebugContext(ctx, "Following download confirmation", slog.String("content_id", contentID))
	resp, err = f.get(ctx, contentID, params, resp.Cookies())
	if err != nil {
		return nil, 0, err
	}
	return resp.Body, resp.ContentLength, nil
}

func (f *HTTPFetcher) get(ctx context.Context, contentID string, extra url.Values, cookies []*http.Cookie) (*http.Response, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid download base url: %w", err)
	}
	q := u.Query()
	q.Set("export", "download")
	q.Set("id", contentID)
	for k, vs := range extra {
		for _, v := range vs {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build download request: %w", err)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("download request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, apperrors.NewNetworkError(fmt.Sprintf("download failed with status: %d", resp.StatusCode), nil)
	}
	return resp, nil
}

func isHTML(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/html"
}

// confirmParams extracts the confirmation parameters of a large-file warning
// page. It returns nil when the page carries none.
func confirmParams(page []byte, cookies []*http.Cookie) url.Values {
	var token string
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, "download_warning") {
			token = c.Value
			break
		}
	}
	if token == "" {
		if m := confirmTokenPattern.FindSubmatch(page); m != nil {
			token = string(m[1])
		}
	}
	if token == "" {
		return nil
	}

	params := url.Values{"confirm": {token}}
	if m := uuidFieldPattern.FindSubmatch(page); m != nil {
		params.Set("uuid", string(m[1]))
	}
	return params
}
