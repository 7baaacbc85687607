package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/poiesic/ragbot/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	visionTemperature = 0.7
	visionTopP        = 0.9
	visionMaxTokens   = 1024

	visionMaxAttempts = 3
	visionBaseDelay   = time.Second
)

// statusCodePattern finds the HTTP status in errors from the OpenAI client.
var statusCodePattern = regexp.MustCompile(`status code: (\d{3})`)

// VisionDescriber implements ai.ImageDescriber against an OpenAI-compatible
// multimodal endpoint such as GLM-4V.
type VisionDescriber struct {
	client    llms.Model
	baseDelay time.Duration
	logger    *slog.Logger
}

var _ ai.ImageDescriber = (*VisionDescriber)(nil)

func newVisionDescriber(config *ai.Config) (*VisionDescriber, error) {
	if !config.VisionEnabled() {
		return nil, ai.ErrVisionUnavailable
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.VisionHost),
		openai.WithToken(config.VisionAPIKey),
		openai.WithModel(config.VisionModel),
	)
	if err != nil {
		return nil, err
	}

	return &VisionDescriber{
		client:    client,
		baseDelay: visionBaseDelay,
		logger:    slog.Default().With("component", "openai-vision"),
	}, nil
}

// NewVisionDescriber creates an image describer. It returns
// ai.ErrVisionUnavailable when the config carries no vision API key.
func NewVisionDescriber(config *ai.Config) (ai.ImageDescriber, error) {
	return newVisionDescriber(config)
}

// DescribeImage sends the image as a data URI together with the enhanced
// question. Rate limits, server errors and connection failures are retried
// with exponential backoff.
func (v *VisionDescriber) DescribeImage(ctx context.Context, image []byte, format, question string) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("vision: empty image")
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", imageMIMEType(format), base64.StdEncoding.EncodeToString(image))
	content := []llms.MessageContent{
		{
			Role: llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.ImageURLPart(dataURI),
				llms.TextPart(EnhanceVisionQuestion(question)),
			},
		},
	}

	var lastErr error
	for attempt := range visionMaxAttempts {
		if attempt > 0 {
			delay := v.baseDelay * time.Duration(1<<(attempt-1))
			v.logger.Info("retrying image analysis", "attempt", attempt+1, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		response, err := v.client.GenerateContent(ctx, content,
			llms.WithTemperature(visionTemperature),
			llms.WithTopP(visionTopP),
			llms.WithMaxTokens(visionMaxTokens),
		)
		if err != nil {
			lastErr = err
			if !isRetryable(err) {
				break
			}
			v.logger.Warn("image analysis failed", "attempt", attempt+1, "err", err)
			continue
		}
		if len(response.Choices) < 1 || response.Choices[0].Content == "" {
			return "", ai.ErrEmptyResponse
		}

		v.logger.Debug("image analyzed", "bytes", len(image), "format", format)
		return visionResultHeader + cleanResponse(response.Choices[0].Content), nil
	}

	v.logger.Error("image analysis failed", "err", lastErr)
	return "", fmt.Errorf("vision: %w", lastErr)
}

// isRetryable reports whether a failed vision call may succeed later:
// HTTP 429, 5xx, or a failure that never produced a status.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	m := statusCodePattern.FindStringSubmatch(err.Error())
	if m == nil {
		return true
	}
	code, _ := strconv.Atoi(m[1])
	return code == 429 || code >= 500
}
