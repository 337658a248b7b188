package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Fetcher ensures loose source artifacts (terminology data files referenced
// by the source manifest) are present in the local cache. Artifacts are
// cached keyed by filename and never re-downloaded once present.
type Fetcher struct {
	httpClient *http.Client
	baseURL    string
	cacheDir   string
}

// NewFetcher creates a Fetcher that resolves relative artifact names
// against baseURL and caches into cacheDir.
func NewFetcher(baseURL, cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Fetcher{httpClient: client, baseURL: baseURL, cacheDir: cacheDir}
}

// Ensure makes the named artifact available locally and returns its path.
// The form "a|b" names an alternate: a is preferred when already
// cached or downloadable, b is the fallback. Absolute paths that exist are
// used in place.
func (f *Fetcher) Ensure(ctx context.Context, spec string) (string, error) {
	primary, fallback, _ := strings.Cut(spec, "|")
	p, err := f.ensureOne(ctx, primary)
	if err == nil {
		return p, nil
	}
	if fallback != "" {
		if p2, err2 := f.ensureOne(ctx, fallback); err2 == nil {
			return p2, nil
		}
	}
	return "", err
}

func (f *Fetcher) ensureOne(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty artifact name")
	}

	// A usable local path wins outright.
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	cached := filepath.Join(f.cacheDir, path.Base(name))
	if _, err := os.Stat(cached); err == nil {
		return cached, nil
	}

	source := name
	if !strings.HasPrefix(name, "http://") && !strings.HasPrefix(name, "https://") {
		if f.baseURL == "" {
			return "", fmt.Errorf("artifact %s not present and no download base configured", name)
		}
		joined, err := url.JoinPath(f.baseURL, name)
		if err != nil {
			return "", fmt.Errorf("resolve artifact url: %w", err)
		}
		source = joined
	}

	if err := os.MkdirAll(f.cacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact cache: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, http.NoBody)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download %s: status %d", source, resp.StatusCode)
	}

	tmp := cached + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, cached); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return cached, nil
}
