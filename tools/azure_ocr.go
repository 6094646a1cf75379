package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const (
	azureAPIVersion   = "2023-07-31"
	azureReadModel    = "prebuilt-read"
	azureBarcodeToken = ":barcode:"
)

var errAnalysisPending = errors.New("analysis not finished")

// AzureConfig configures the Azure Document Intelligence OCR engine.
type AzureConfig struct {
	Endpoint     string
	APIKey       string
	PollInterval time.Duration
	MaxPolls     uint64
}

// AzureEngine recognizes text with the Azure Document Intelligence read
// model, with barcode extraction enabled.
type AzureEngine struct {
	cfg    AzureConfig
	http   *http.Client
	logger zerolog.Logger
}

type azureOperation struct {
	Status        string              `json:"status"`
	AnalyzeResult *azureAnalyzeResult `json:"analyzeResult"`
	Error         *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type azureAnalyzeResult struct {
	Content string `json:"content"`
	Pages   []struct {
		Barcodes []struct {
			Kind  string `json:"kind"`
			Value string `json:"value"`
		} `json:"barcodes"`
	} `json:"pages"`
	Paragraphs []azureParagraph `json:"paragraphs"`
}

type azureParagraph struct {
	Content         string `json:"content"`
	BoundingRegions []struct {
		PageNumber int       `json:"pageNumber"`
		Polygon    []float64 `json:"polygon"`
	} `json:"boundingRegions"`
}

// NewAzureEngine creates the Azure OCR engine. httpClient may be nil.
func NewAzureEngine(cfg AzureConfig, httpClient *http.Client, logger zerolog.Logger) *AzureEngine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxPolls == 0 {
		cfg.MaxPolls = 60
	}
	return &AzureEngine{
		cfg:    cfg,
		http:   orDefaultClient(httpClient),
		logger: logger.With().Str("component", "azureOCR").Logger(),
	}
}

func (e *AzureEngine) Recognize(ctx context.Context, img *Image) (string, error) {
	if e.cfg.Endpoint == "" || e.cfg.APIKey == "" {
		return "", Fatal("ocr", errors.New("azure document intelligence endpoint or key not configured"))
	}
	location, err := e.submit(ctx, img)
	if err != nil {
		return "", err
	}
	e.logger.Debug().Str("operation", location).Msg("Analysis submitted")

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(e.cfg.PollInterval), e.cfg.MaxPolls), ctx)
	result, err := backoff.RetryWithData(func() (*azureAnalyzeResult, error) {
		return e.poll(ctx, location)
	}, b)
	if err != nil {
		var toolErr *Error
		if errors.As(err, &toolErr) {
			return "", toolErr
		}
		return "", Recoverable("ocr", err)
	}
	if result == nil || strings.TrimSpace(result.Content) == "" {
		return "No good document analysis result was found", nil
	}
	return formatAnalysis(result), nil
}

func (e *AzureEngine) submit(ctx context.Context, img *Image) (string, error) {
	endpoint := fmt.Sprintf("%s/formrecognizer/documentModels/%s:analyze?api-version=%s&features=barcodes",
		strings.TrimRight(e.cfg.Endpoint, "/"), azureReadModel, azureAPIVersion)

	var (
		body        io.Reader
		contentType string
	)
	if img.IsRemote() {
		raw, err := json.Marshal(map[string]string{"urlSource": img.Source})
		if err != nil {
			return "", Fatal("ocr", err)
		}
		body, contentType = bytes.NewReader(raw), "application/json"
	} else {
		body, contentType = bytes.NewReader(img.Data), "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", Fatal("ocr", fmt.Errorf("failed to build analyze request: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Ocp-Apim-Subscription-Key", e.cfg.APIKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return "", Recoverable("ocr", fmt.Errorf("analyze request failed: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return "", statusError("ocr", resp.StatusCode, string(raw))
	}
	location := resp.Header.Get("Operation-Location")
	if location == "" {
		return "", Recoverable("ocr", errors.New("analyze response has no Operation-Location"))
	}
	return location, nil
}

// poll returns errAnalysisPending while the operation runs; terminal
// failures are permanent.
func (e *AzureEngine) poll(ctx context.Context, location string) (*azureAnalyzeResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, backoff.Permanent(Fatal("ocr", err))
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", e.cfg.APIKey)

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, Recoverable("ocr", fmt.Errorf("poll request failed: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Recoverable("ocr", err)
	}
	if resp.StatusCode != http.StatusOK {
		serr := statusError("ocr", resp.StatusCode, string(raw))
		if serr.Fatal {
			return nil, backoff.Permanent(serr)
		}
		return nil, serr
	}

	var op azureOperation
	if err := json.Unmarshal(raw, &op); err != nil {
		return nil, backoff.Permanent(Recoverable("ocr", fmt.Errorf("failed to decode analysis: %w", err)))
	}
	switch op.Status {
	case "succeeded":
		return op.AnalyzeResult, nil
	case "failed":
		msg := "analysis failed"
		if op.Error != nil {
			msg = fmt.Sprintf("analysis failed: %s: %s", op.Error.Code, op.Error.Message)
		}
		return nil, backoff.Permanent(Recoverable("ocr", errors.New(msg)))
	default:
		return nil, errAnalysisPending
	}
}

// formatAnalysis renders the recognized text. The paragraph printed largest
// relative to its length, usually the event title, is wrapped in asterisks,
// and decoded barcodes follow as "kind: value" lines.
func formatAnalysis(res *azureAnalyzeResult) string {
	content := strings.TrimSpace(strings.ReplaceAll(res.Content, azureBarcodeToken, ""))
	if title := densestParagraph(res.Paragraphs); title != "" {
		content = strings.ReplaceAll(content, title, "*"+title+"*")
	}

	lines := []string{content}
	for _, page := range res.Pages {
		for _, bc := range page.Barcodes {
			lines = append(lines, bc.Kind+": "+bc.Value)
		}
	}
	return strings.Join(lines, "\n")
}

func densestParagraph(paragraphs []azureParagraph) string {
	best, bestDensity := "", -1.0
	for _, p := range paragraphs {
		n := utf8.RuneCountInString(p.Content)
		if n == 0 {
			continue
		}
		for _, region := range p.BoundingRegions {
			density := polygonArea(region.Polygon) / float64(n)
			if density > bestDensity {
				best, bestDensity = p.Content, density
			}
		}
	}
	return best
}

// polygonArea returns the area of the axis-aligned box around a flat
// [x1, y1, x2, y2, ...] polygon.
func polygonArea(polygon []float64) float64 {
	if len(polygon) < 4 {
		return 0
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := 0; i+1 < len(polygon); i += 2 {
		x, y := polygon[i], polygon[i+1]
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return (maxX - minX) * (maxY - minY)
}
