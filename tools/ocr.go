package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aschepis/flyercal/llm"
	"github.com/rs/zerolog"
)

const ocrDescription = "OCR tool that extracts the text printed on the event flyer"

// OCREngine turns an image into text.
type OCREngine interface {
	Recognize(ctx context.Context, img *Image) (string, error)
}

// OCRTool is the "ocr" tool.
type OCRTool struct {
	engine OCREngine
	loader *ImageLoader
	logger zerolog.Logger
}

// NewOCRTool creates the ocr tool over engine.
func NewOCRTool(engine OCREngine, loader *ImageLoader, logger zerolog.Logger) *OCRTool {
	if loader == nil {
		loader = NewImageLoader(nil)
	}
	return &OCRTool{
		engine: engine,
		loader: loader,
		logger: logger.With().Str("component", "ocr").Logger(),
	}
}

func (t *OCRTool) Name() string        { return "ocr" }
func (t *OCRTool) Params() []string    { return []string{"url"} }
func (t *OCRTool) Description() string { return ocrDescription }

func (t *OCRTool) Run(ctx context.Context, args map[string]string) (string, error) {
	src, err := required(t.Name(), args, "url")
	if err != nil {
		return "", err
	}
	img, err := t.loader.Load(ctx, src)
	if err != nil {
		return "", err
	}
	t.logger.Debug().Str("source", src).Str("media_type", img.MediaType).Int("bytes", len(img.Data)).Msg("Recognizing image")
	text, err := t.engine.Recognize(ctx, img)
	if err != nil {
		return "", err
	}
	return text, nil
}

const visionPrompt = `Transcribe all the text printed on this event flyer, preserving the reading order, one block of text per line.
Wrap the most prominent text (usually the event title) in asterisks, like *this*.
If the flyer contains QR codes or barcodes with readable content, add one line per code as "QRCode: <value>".
Reply with the transcription only.`

// VisionEngine recognizes text with a vision-capable language model.
type VisionEngine struct {
	client    llm.Client
	model     string
	maxTokens int64
}

// NewVisionEngine creates an OCR engine backed by client.
func NewVisionEngine(client llm.Client, model string) *VisionEngine {
	return &VisionEngine{client: client, model: model, maxTokens: 2048}
}

func (e *VisionEngine) Recognize(ctx context.Context, img *Image) (string, error) {
	resp, err := e.client.Synchronous(ctx, &llm.Request{
		Model:     e.model,
		Messages:  []llm.Message{llm.NewImageMessage(img.MediaType, img.Data, visionPrompt)},
		MaxTokens: e.maxTokens,
	})
	if err != nil {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && !llmErr.Retryable && llmErr.Type != llm.ErrorTypeUnknown {
			return "", Fatal("ocr", err)
		}
		return "", Recoverable("ocr", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", Recoverable("ocr", fmt.Errorf("model returned no text"))
	}
	return text, nil
}
