package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/book-expert/speech-gateway/internal/server"
	"github.com/book-expert/speech-gateway/internal/tts"
)

var errGateway = errors.New("gateway returned an error")

// gatewayClient calls the speech gateway HTTP API.
type gatewayClient struct {
	baseURL    string
	httpClient *http.Client
}

func newGatewayClient(baseURL string, timeout time.Duration) *gatewayClient {
	return &gatewayClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// speechResult is a downloaded clip.
type speechResult struct {
	Audio       []byte
	ContentType string
	Filename    string
	RequestID   string
}

func (c *gatewayClient) speak(ctx context.Context, req tts.SpeechRequest) (speechResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return speechResult{}, fmt.Errorf("failed to encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/audio/speech", bytes.NewReader(body))
	if err != nil {
		return speechResult{}, fmt.Errorf("failed to create request: %w", err)
	}

	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return speechResult{}, fmt.Errorf("speech request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return speechResult{}, parseGatewayError(response)
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return speechResult{}, fmt.Errorf("failed to read audio: %w", err)
	}

	return speechResult{
		Audio:       data,
		ContentType: response.Header.Get("Content-Type"),
		Filename:    filenameFromDisposition(response.Header.Get("Content-Disposition")),
		RequestID:   response.Header.Get(server.HEADER_REQUEST_ID),
	}, nil
}

func (c *gatewayClient) voices(ctx context.Context) ([]tts.VoiceInfo, error) {
	var payload server.VoicesResponse

	err := c.getJSON(ctx, "/v1/audio/voices", &payload)
	if err != nil {
		return nil, err
	}

	return payload.Voices, nil
}

func (c *gatewayClient) models(ctx context.Context) ([]tts.ModelInfo, error) {
	var payload server.ModelsResponse

	err := c.getJSON(ctx, "/v1/models", &payload)
	if err != nil {
		return nil, err
	}

	return payload.Data, nil
}

// health returns the reported health; a 503 reply is not an error.
func (c *gatewayClient) health(ctx context.Context) (tts.Health, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return tts.Health{}, fmt.Errorf("failed to create request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return tts.Health{}, fmt.Errorf("health request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusServiceUnavailable {
		return tts.Health{}, parseGatewayError(response)
	}

	var health tts.Health

	err = json.NewDecoder(response.Body).Decode(&health)
	if err != nil {
		return tts.Health{}, fmt.Errorf("failed to decode health response: %w", err)
	}

	return health, nil
}

func (c *gatewayClient) getJSON(ctx context.Context, path string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return parseGatewayError(response)
	}

	err = json.NewDecoder(response.Body).Decode(target)
	if err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}

func parseGatewayError(response *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(response.Body, 64*1024))

	var errorResponse server.ErrorResponse
	if json.Unmarshal(body, &errorResponse) == nil && errorResponse.Detail != "" {
		return fmt.Errorf("%w (status %d): %s", errGateway, response.StatusCode, errorResponse.Detail)
	}

	return fmt.Errorf("%w (status %d): %s", errGateway, response.StatusCode, strings.TrimSpace(string(body)))
}

func filenameFromDisposition(disposition string) string {
	_, filename, found := strings.Cut(disposition, "filename=")
	if !found {
		return ""
	}

	return strings.Trim(filename, `"`)
}
