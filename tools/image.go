package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

// maxImageBytes caps downloaded flyers.
const maxImageBytes = 20 << 20

// Image is a loaded flyer.
type Image struct {
	Source    string
	MediaType string
	Data      []byte
}

// IsRemote reports whether the image came from an http(s) URL.
func (i *Image) IsRemote() bool {
	return isRemote(i.Source)
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

// ImageLoader reads flyers from local paths or URLs.
type ImageLoader struct {
	http *http.Client
}

// NewImageLoader creates a loader. httpClient may be nil.
func NewImageLoader(httpClient *http.Client) *ImageLoader {
	return &ImageLoader{http: orDefaultClient(httpClient)}
}

// Load reads src and sniffs its media type.
func (l *ImageLoader) Load(ctx context.Context, src string) (*Image, error) {
	var (
		data []byte
		err  error
	)
	if isRemote(src) {
		data, err = l.download(ctx, src)
	} else {
		data, err = os.ReadFile(strings.TrimPrefix(src, "file://"))
		if err != nil {
			err = Fatal("ocr", fmt.Errorf("failed to read image: %w", err))
		}
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, Fatal("ocr", fmt.Errorf("image %s is empty", src))
	}
	return &Image{Source: src, MediaType: http.DetectContentType(data), Data: data}, nil
}

func (l *ImageLoader) download(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, Fatal("ocr", fmt.Errorf("invalid image url: %w", err))
	}
	resp, err := l.http.Do(req)
	if err != nil {
		return nil, Recoverable("ocr", fmt.Errorf("image download failed: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, Recoverable("ocr", fmt.Errorf("image download returned status %d", resp.StatusCode))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, Recoverable("ocr", fmt.Errorf("failed to read image: %w", err))
	}
	return data, nil
}
