package feed

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SourceOptions tunes remote fetches.
type SourceOptions struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	// RatePerSecond throttles remote fetches per supplier so a multi-file
	// import does not hammer one supplier's server.
	RatePerSecond float64
}

// Source resolves a price-list reference (local path, http(s) or ftp URL)
// into a readable stream.
type Source struct {
	client *http.Client
	opts   SourceOptions

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSource creates a source with the given options. Zero values fall back
// to defaults.
func NewSource(opts SourceOptions) *Source {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "catalog-cli/1.0"
	}
	if opts.RatePerSecond <= 0 {
		opts.RatePerSecond = 2
	}
	return &Source{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (s *Source) limiterFor(supplierID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	lim, ok := s.limiters[supplierID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.opts.RatePerSecond), 1)
		s.limiters[supplierID] = lim
	}
	return lim
}

// Open fetches the reference and returns its stream. Local paths open
// directly; remote schemes go through the supplier's rate limiter.
func (s *Source) Open(ctx context.Context, supplierID, ref string) (io.ReadCloser, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// No scheme (or a Windows drive letter): treat as a local path.
		f, err := os.Open(ref)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: open %s", ref)
		}
		return f, nil
	}

	switch u.Scheme {
	case "http", "https":
		if err := s.limiterFor(supplierID).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "feed: rate limiter wait")
		}
		return s.download(ctx, ref)
	case "ftp":
		if err := s.limiterFor(supplierID).Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "feed: rate limiter wait")
		}
		return s.downloadFTP(ctx, u)
	case "file":
		f, err := os.Open(u.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "feed: open %s", u.Path)
		}
		return f, nil
	default:
		return nil, eris.Errorf("feed: unsupported scheme %q", u.Scheme)
	}
}

func (s *Source) download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	var lastErr error
	for attempt := range s.opts.MaxRetries {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "feed: create request")
		}
		req.Header.Set("User-Agent", s.opts.UserAgent)

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			zap.L().Warn("feed: http request failed, retrying",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("feed: http %d from %s", resp.StatusCode, rawURL)
			zap.L().Warn("feed: retryable status",
				zap.String("url", rawURL),
				zap.Int("status", resp.StatusCode),
				zap.Int("attempt", attempt+1),
			)
			backoff(ctx, attempt)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, eris.Errorf("feed: unexpected status %d from %s", resp.StatusCode, rawURL)
		}
		return resp.Body, nil
	}
	return nil, eris.Wrap(lastErr, "feed: all retries exhausted")
}

func backoff(ctx context.Context, attempt int) {
	d := time.Duration(float64(time.Second) * math.Pow(2, float64(attempt)))
	if d > 15*time.Second {
		d = 15 * time.Second
	}
	d += time.Duration(rand.Int64N(int64(d) / 2))

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ftpConnReader ties the FTP data stream to its control connection so closing
// the reader also disconnects.
type ftpConnReader struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (r *ftpConnReader) Read(p []byte) (int, error) { return r.resp.Read(p) }

func (r *ftpConnReader) Close() error {
	respErr := r.resp.Close()
	quitErr := r.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "feed: close ftp response")
	}
	if quitErr != nil {
		return eris.Wrap(quitErr, "feed: quit ftp connection")
	}
	return nil
}

func (s *Source) downloadFTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	host := u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" {
		return nil, eris.New("feed: empty path in ftp url")
	}

	user, pass := "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}

	zap.L().Debug("feed: connecting to ftp", zap.String("host", host), zap.String("path", u.Path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(s.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrap(err, "feed: ftp dial")
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "feed: ftp login")
	}
	resp, err := conn.Retr(u.Path)
	if err != nil {
		conn.Quit()
		return nil, eris.Wrap(err, "feed: ftp retrieve")
	}
	return &ftpConnReader{resp: resp, conn: conn}, nil
}

// formatFor infers the file format from the reference when the profile does
// not pin one.
func formatFor(profile Profile, ref string) Format {
	if profile.Format != "" {
		return profile.Format
	}
	if strings.HasSuffix(strings.ToLower(strings.TrimSuffix(ref, "/")), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}
