package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrTranscriberNotConfigured = errors.New("transcription api key is not configured")

// Transcriber converts a recording to text.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error)
}

type WhisperConfig struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperClient posts recordings to an OpenAI-compatible
// /audio/transcriptions endpoint.
type WhisperClient struct {
	cfg        WhisperConfig
	httpClient *http.Client
	logger     *zap.Logger
}

func NewWhisperClient(cfg WhisperConfig, logger *zap.Logger) *WhisperClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Model == "" {
		cfg.Model = "whisper-1"
	}
	if cfg.Language == "" {
		cfg.Language = "zh"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &WhisperClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *WhisperClient) Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrTranscriberNotConfigured
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("copy audio data: %w", err)
	}
	for key, value := range map[string]string{
		"model":           c.cfg.Model,
		"language":        c.cfg.Language,
		"response_format": "json",
	} {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("write %s field: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var decoded struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	c.logger.Debug("audio transcribed",
		zap.String("model", c.cfg.Model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("text_len", len(decoded.Text)),
	)
	return strings.TrimSpace(decoded.Text), nil
}
