package tools

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

//go:embed browser/fetch.js
var fetchScript []byte

// maxPageBytes caps downloaded pages.
const maxPageBytes = 10 << 20

// ErrPageLoad reports a page that could not be loaded.
var ErrPageLoad = errors.New("error loading page")

// Page is a fetched web page. Body holds raw HTML.
type Page struct {
	URL   string
	Title string
	Body  string
}

// Fetcher loads web pages.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Page, error)
}

// HTTPFetcher loads pages with a plain GET. JavaScript is not executed.
type HTTPFetcher struct {
	http      *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTPFetcher. httpClient may be nil.
func NewHTTPFetcher(httpClient *http.Client, userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = "Mozilla/5.0 (compatible; " + DefaultUserAgent + ")"
	}
	return &HTTPFetcher{http: orDefaultClient(httpClient), userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d", ErrPageLoad, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	body := string(raw)
	return &Page{URL: url, Title: PageTitle(body), Body: body}, nil
}

// DockerConfig configures a DockerFetcher.
type DockerConfig struct {
	Image string
	// ScriptDir is mounted into the container and must hold fetch.js. When
	// empty the bundled script is written to a temporary directory.
	ScriptDir      string
	SeccompProfile string
}

// DefaultPlaywrightImage is the container used to render pages.
const DefaultPlaywrightImage = "mcr.microsoft.com/playwright:latest"

// CommandRunner runs an external command and returns its stdout.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// DockerFetcher renders pages in a headless browser inside a throwaway
// Playwright container.
type DockerFetcher struct {
	cfg    DockerConfig
	run    CommandRunner
	logger zerolog.Logger

	once      sync.Once
	scriptDir string
	scriptErr error
}

// NewDockerFetcher creates a DockerFetcher. run may be nil to use docker on
// the PATH.
func NewDockerFetcher(cfg DockerConfig, run CommandRunner, logger zerolog.Logger) *DockerFetcher {
	if cfg.Image == "" {
		cfg.Image = DefaultPlaywrightImage
	}
	if run == nil {
		run = execRunner
	}
	return &DockerFetcher{
		cfg:    cfg,
		run:    run,
		logger: logger.With().Str("component", "dockerFetcher").Logger(),
	}
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

func (f *DockerFetcher) Fetch(ctx context.Context, url string) (*Page, error) {
	dir, err := f.script()
	if err != nil {
		return nil, Fatal("webpageqa", err)
	}

	args := []string{"run", "--rm", "--ipc=host", "--user", "pwuser", "-v", dir + ":/mnt/flyercal:ro"}
	if f.cfg.SeccompProfile != "" {
		args = append(args, "--security-opt", "seccomp="+f.cfg.SeccompProfile)
	}
	args = append(args, f.cfg.Image, "node", "/mnt/flyercal/fetch.js", url)

	f.logger.Debug().Str("url", url).Str("image", f.cfg.Image).Msg("Rendering page")
	out, err := f.run(ctx, "docker", args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	return parseRenderedPage(url, out)
}

func parseRenderedPage(url string, out []byte) (*Page, error) {
	var page struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	}
	// Browser logs may precede the result; the JSON is the last line.
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &page); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageLoad, err)
	}
	if page.Title == "ERROR" && page.Body == "" {
		return nil, ErrPageLoad
	}
	return &Page{URL: url, Title: page.Title, Body: page.Body}, nil
}

func (f *DockerFetcher) script() (string, error) {
	if f.cfg.ScriptDir != "" {
		return f.cfg.ScriptDir, nil
	}
	f.once.Do(func() {
		dir, err := os.MkdirTemp("", "flyercal-browser-")
		if err != nil {
			f.scriptErr = fmt.Errorf("failed to create script dir: %w", err)
			return
		}
		if err := os.WriteFile(filepath.Join(dir, "fetch.js"), fetchScript, 0o644); err != nil {
			f.scriptErr = fmt.Errorf("failed to write fetch script: %w", err)
			return
		}
		f.scriptDir = dir
	})
	return f.scriptDir, f.scriptErr
}
