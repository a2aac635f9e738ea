package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"

	"github.com/neurasky/neurasky/internal/httputil"
)

// File is one fetched dataset file.
type File struct {
	Name string
	Data []byte
}

// Source yields dataset files.
type Source interface {
	Kind() string
	// Location identifies where files come from, without credentials.
	Location() string
	Fetch(ctx context.Context) ([]File, error)
}

// Open picks a source for target: a local file or directory, an http(s) URL
// or an ftp URL.
func Open(target string) (Source, error) {
	u, err := url.Parse(target)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return NewHTTPSource(target, nil), nil
		case "ftp":
			return NewFTPSource(u)
		}
	}
	if target == "" {
		return nil, errors.New("empty dataset source")
	}
	return &DirSource{Path: target}, nil
}

// DirSource reads a single CSV file, or every *.csv in a directory in name order.
type DirSource struct {
	Path string
}

func (d *DirSource) Kind() string     { return "dir" }
func (d *DirSource) Location() string { return d.Path }

func (d *DirSource) Fetch(ctx context.Context) ([]File, error) {
	info, err := os.Stat(d.Path)
	if err != nil {
		return nil, fmt.Errorf("stat dataset: %w", err)
	}
	paths := []string{d.Path}
	if info.IsDir() {
		paths, err = filepath.Glob(filepath.Join(d.Path, "*.csv"))
		if err != nil {
			return nil, err
		}
		slices.Sort(paths)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no csv files in %s", d.Path)
	}

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// HTTPSource downloads one dataset file, retrying rate limits, server
// errors and network failures with exponential backoff.
type HTTPSource struct {
	URL             string
	Client          *http.Client
	InitialInterval time.Duration
	MaxElapsed      time.Duration
}

func NewHTTPSource(rawURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = httputil.NewClient()
	}
	return &HTTPSource{
		URL:             rawURL,
		Client:          client,
		InitialInterval: backoff.DefaultInitialInterval,
		MaxElapsed:      2 * time.Minute,
	}
}

func (h *HTTPSource) Kind() string { return "http" }

func (h *HTTPSource) Location() string {
	if u, err := url.Parse(h.URL); err == nil {
		return u.Redacted()
	}
	return h.URL
}

func (h *HTTPSource) Fetch(ctx context.Context) ([]File, error) {
	var body []byte
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		resp, err := h.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return fmt.Errorf("fetch dataset: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("fetch dataset: status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("fetch dataset: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.InitialInterval
	bo.MaxElapsedTime = h.MaxElapsed
	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}

	name := path.Base(h.URL)
	if u, err := url.Parse(h.URL); err == nil && u.Path != "" {
		name = path.Base(u.Path)
	}
	return []File{{Name: name, Data: body}}, nil
}

// ftpConn is the subset of *ftp.ServerConn the FTP source needs.
type ftpConn interface {
	Login(user, password string) error
	List(path string) ([]*ftp.Entry, error)
	Retr(path string) (io.ReadCloser, error)
	Quit() error
}

type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// FTPSource downloads dataset files from an FTP mirror. A path ending in
// "/" fetches every *.csv in that directory.
type FTPSource struct {
	Addr     string
	User     string
	Password string
	Path     string
	Timeout  time.Duration

	dial func(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error)
}

func NewFTPSource(u *url.URL) (*FTPSource, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("ftp source %q has no host", u.Redacted())
	}
	addr := u.Host
	if u.Port() == "" {
		addr += ":21"
	}
	s := &FTPSource{
		Addr:     addr,
		User:     "anonymous",
		Password: "anonymous",
		Path:     u.Path,
		Timeout:  30 * time.Second,
		dial:     dialFTP,
	}
	if u.User != nil {
		s.User = u.User.Username()
		if p, ok := u.User.Password(); ok {
			s.Password = p
		}
	}
	if s.Path == "" {
		s.Path = "/"
	}
	return s, nil
}

func dialFTP(ctx context.Context, addr string, timeout time.Duration) (ftpConn, error) {
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, err
	}
	return serverConn{conn}, nil
}

func (f *FTPSource) Kind() string     { return "ftp" }
func (f *FTPSource) Location() string { return "ftp://" + f.Addr + f.Path }

func (f *FTPSource) Fetch(ctx context.Context) ([]File, error) {
	conn, err := f.dial(ctx, f.Addr, f.Timeout)
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(f.User, f.Password); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	paths := []string{f.Path}
	if strings.HasSuffix(f.Path, "/") {
		entries, err := conn.List(f.Path)
		if err != nil {
			return nil, fmt.Errorf("ftp list %s: %w", f.Path, err)
		}
		paths = paths[:0]
		for _, e := range entries {
			if e.Type == ftp.EntryTypeFile && strings.HasSuffix(strings.ToLower(e.Name), ".csv") {
				paths = append(paths, path.Join(f.Path, e.Name))
			}
		}
		slices.Sort(paths)
		if len(paths) == 0 {
			return nil, fmt.Errorf("no csv files in ftp directory %s", f.Path)
		}
	}

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := conn.Retr(p)
		if err != nil {
			return nil, fmt.Errorf("ftp retr %s: %w", p, err)
		}
		data, err := io.ReadAll(resp)
		resp.Close()
		if err != nil {
			return nil, fmt.Errorf("ftp read %s: %w", p, err)
		}
		files = append(files, File{Name: path.Base(p), Data: data})
	}
	return files, nil
}
