package tools

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aschepis/flyercal/llm"
	"github.com/rs/zerolog"
)

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flyer.png")
	if err := os.WriteFile(path, pngHeader, 0o644); err != nil {
		t.Fatalf("Failed to write image: %v", err)
	}
	return path
}

func TestFormatAnalysis(t *testing.T) {
	var res azureAnalyzeResult
	raw := `{
		"content": "CONCIERTO\nSabado 21/06 :barcode:\nEntrada libre",
		"pages": [{"barcodes": [{"kind": "QRCode", "value": "https://tickets.example"}]}],
		"paragraphs": [
			{"content": "CONCIERTO", "boundingRegions": [{"pageNumber": 1, "polygon": [0,0, 9,0, 9,3, 0,3]}]},
			{"content": "Sabado 21/06", "boundingRegions": [{"pageNumber": 1, "polygon": [0,4, 6,4, 6,5, 0,5]}]},
			{"content": "Entrada libre", "boundingRegions": [{"pageNumber": 1, "polygon": [0,6, 4,6, 4,7, 0,7]}]}
		]
	}`
	if err := json.Unmarshal([]byte(raw), &res); err != nil {
		t.Fatalf("Failed to decode fixture: %v", err)
	}

	want := "*CONCIERTO*\nSabado 21/06 \nEntrada libre\nQRCode: https://tickets.example"
	if got := formatAnalysis(&res); got != want {
		t.Errorf("Expected:\n%q\ngot:\n%q", want, got)
	}
}

func TestPolygonArea(t *testing.T) {
	tests := []struct {
		name    string
		polygon []float64
		want    float64
	}{
		{"rectangle", []float64{1, 1, 4, 1, 4, 3, 1, 3}, 6},
		{"rotated", []float64{2, 0, 4, 2, 2, 4, 0, 2}, 16},
		{"degenerate", []float64{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := polygonArea(tt.polygon); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestAzureEngine(t *testing.T) {
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "azure-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "prebuilt-read:analyze"):
			if r.URL.Query().Get("features") != "barcodes" {
				t.Errorf("Expected barcodes feature, got %q", r.URL.RawQuery)
			}
			if ct := r.Header.Get("Content-Type"); ct != "application/octet-stream" {
				t.Errorf("Expected octet-stream upload, got %q", ct)
			}
			body, _ := io.ReadAll(r.Body)
			if len(body) != len(pngHeader) {
				t.Errorf("Expected image bytes in body, got %d bytes", len(body))
			}
			w.Header().Set("Operation-Location", srv.URL+"/operations/1")
			w.WriteHeader(http.StatusAccepted)
		case r.Method == http.MethodGet && r.URL.Path == "/operations/1":
			if atomic.AddInt32(&polls, 1) < 3 {
				_, _ = w.Write([]byte(`{"status":"running"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"succeeded","analyzeResult":{"content":"FIESTA\nVigo","paragraphs":[
				{"content":"FIESTA","boundingRegions":[{"pageNumber":1,"polygon":[0,0,10,0,10,5,0,5]}]},
				{"content":"Vigo","boundingRegions":[{"pageNumber":1,"polygon":[0,6,1,6,1,7,0,7]}]}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	engine := NewAzureEngine(AzureConfig{Endpoint: srv.URL, APIKey: "azure-key", PollInterval: time.Millisecond}, srv.Client(), zerolog.Nop())
	tool := NewOCRTool(engine, NewImageLoader(srv.Client()), zerolog.Nop())

	out, err := tool.Run(context.Background(), map[string]string{"url": writeImage(t)})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != "*FIESTA*\nVigo" {
		t.Errorf("Expected emphasised title, got %q", out)
	}
	if got := atomic.LoadInt32(&polls); got != 3 {
		t.Errorf("Expected 3 polls, got %d", got)
	}
}

func TestAzureEngine_FailedAnalysis(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			w.Header().Set("Operation-Location", srv.URL+"/operations/2")
			w.WriteHeader(http.StatusAccepted)
			return
		}
		_, _ = w.Write([]byte(`{"status":"failed","error":{"code":"InvalidImage","message":"unreadable"}}`))
	}))
	defer srv.Close()

	engine := NewAzureEngine(AzureConfig{Endpoint: srv.URL, APIKey: "k", PollInterval: time.Millisecond}, srv.Client(), zerolog.Nop())
	_, err := engine.Recognize(context.Background(), &Image{Source: "flyer.png", Data: pngHeader})
	if err == nil || !strings.Contains(err.Error(), "InvalidImage") {
		t.Fatalf("Expected analysis failure, got %v", err)
	}
	if !IsRecoverable(err) {
		t.Errorf("Expected failed analysis to be recoverable, got %v", err)
	}
}

func TestAzureEngine_NotConfigured(t *testing.T) {
	engine := NewAzureEngine(AzureConfig{}, nil, zerolog.Nop())
	_, err := engine.Recognize(context.Background(), &Image{Data: pngHeader})
	if !errors.Is(err, ErrFatal) {
		t.Errorf("Expected fatal error, got %v", err)
	}
}

func TestVisionEngine(t *testing.T) {
	var got *llm.Request
	client := llm.ClientFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		got = req
		return &llm.Response{Content: []llm.ContentBlock{{Type: llm.ContentBlockTypeText, Text: "  *CONCIERTO*\nVigo  "}}}, nil
	})
	tool := NewOCRTool(NewVisionEngine(client, "vision-model"), nil, zerolog.Nop())

	out, err := tool.Run(context.Background(), map[string]string{"url": writeImage(t)})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out != "*CONCIERTO*\nVigo" {
		t.Errorf("Expected trimmed transcription, got %q", out)
	}
	if got.Model != "vision-model" {
		t.Errorf("Expected model 'vision-model', got %q", got.Model)
	}
	img := got.Messages[0].Content[0].Image
	if img == nil || img.MediaType != "image/png" {
		t.Errorf("Expected png image block, got %+v", got.Messages[0].Content[0])
	}
}

func TestVisionEngine_ErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		recoverable bool
	}{
		{"rate limited", llm.NewRateLimitError("slow", nil, nil), true},
		{"bad request", llm.NewInvalidRequestError("no vision", nil), false},
		{"network", llm.NewNetworkError("reset", nil), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := llm.ClientFunc(func(context.Context, *llm.Request) (*llm.Response, error) {
				return nil, tt.err
			})
			_, err := NewVisionEngine(client, "m").Recognize(context.Background(), &Image{MediaType: "image/png", Data: pngHeader})
			if IsRecoverable(err) != tt.recoverable {
				t.Errorf("Expected recoverable=%v, got %v (%v)", tt.recoverable, IsRecoverable(err), err)
			}
		})
	}
}

func TestImageLoader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(pngHeader)
	}))
	defer srv.Close()
	loader := NewImageLoader(srv.Client())

	img, err := loader.Load(context.Background(), srv.URL+"/flyer.png")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !img.IsRemote() || img.MediaType != "image/png" {
		t.Errorf("Expected remote png, got %+v", img)
	}

	if _, err := loader.Load(context.Background(), srv.URL+"/missing.png"); !IsRecoverable(err) {
		t.Errorf("Expected recoverable download error, got %v", err)
	}
	if _, err := loader.Load(context.Background(), filepath.Join(t.TempDir(), "nope.png")); !errors.Is(err, ErrFatal) {
		t.Errorf("Expected fatal error for missing file, got %v", err)
	}
}
