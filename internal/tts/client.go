// Package tts implements the speech synthesis pipeline: request resolution,
// model invocation, waveform cleaning and container encoding.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/speech-gateway/internal/tts/audio"
)

// API endpoints and paths of the inference server.
const (
	apiGenerateSpeech = "/v1/generate/speech"
	apiLanguages      = "/v1/languages"
	apiHealth         = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeWAV    = "audio/wav"
	contentTypeXWAV   = "audio/x-wav"
	contentTypeWAVE   = "audio/wave"
)

// Error messages.
const (
	errUnexpectedContentType   = "unexpected content type: expected audio/wav, got %s"
	errFmtServiceErrorWithCode = "inference service error (%s): %s (code: %s)"
	errFmtServiceNonOKStatus   = "inference service returned non-OK status: %s, body: %s"
)

// ErrEmptyAudio is returned when the inference server answers with no audio.
var ErrEmptyAudio = errors.New("received empty audio data")

// HTTPModel is a Model served by a standalone inference server.
type HTTPModel struct {
	httpClient *http.Client
	baseURL    string
	name       string

	mutex     sync.RWMutex
	device    string
	languages map[string]string
}

// GenerateRequest is the JSON payload of a generation request.
type GenerateRequest struct {
	Text string `json:"text"`

	// SpeakerRefPath is a server-side path to reference audio for voice cloning.
	SpeakerRefPath string `json:"speaker_ref_path,omitempty"`

	// Language is empty for the model default.
	Language string `json:"language,omitempty"`

	Temperature  float64 `json:"temperature"`
	CFGWeight    float64 `json:"cfg_weight"`
	Exaggeration float64 `json:"exaggeration"`
}

// ServiceErrorResponse is a structured error from the inference server.
type ServiceErrorResponse struct {
	Detail    string `json:"detail"`
	ErrorCode string `json:"error_code,omitempty"`
}

// HealthResponse is the inference server health payload.
type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
	Device string `json:"device,omitempty"`
	Error  string `json:"error,omitempty"`
}

type languagesResponse struct {
	Languages map[string]string `json:"languages"`
}

// NewHTTPModel creates a model client for the server at baseURL
// (e.g. "http://localhost:8001"). timeout applies to every request.
func NewHTTPModel(baseURL, name, device string, timeout time.Duration) *HTTPModel {
	return &HTTPModel{
		baseURL: strings.TrimRight(baseURL, "/"),
		name:    name,
		device:  device,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Name returns the model name.
func (c *HTTPModel) Name() string {
	return c.name
}

// Device returns the device reported by the server, or the configured one.
func (c *HTTPModel) Device() string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.device
}

// SupportedLanguages returns the table fetched during Load.
func (c *HTTPModel) SupportedLanguages() map[string]string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.languages
}

// Load checks the server health and fetches its language table.
func (c *HTTPModel) Load(ctx context.Context) error {
	health, err := c.HealthCheck(ctx)
	if err != nil {
		return err
	}

	languages, err := c.fetchLanguages(ctx)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if health.Device != "" {
		c.device = health.Device
	}

	c.languages = languages

	return nil
}

// Generate requests one utterance and decodes the returned WAV.
func (c *HTTPModel) Generate(ctx context.Context, params GenerateParams) (audio.Waveform, error) {
	audioData, err := c.GenerateSpeech(ctx, GenerateRequest{
		Text:           params.Text,
		SpeakerRefPath: params.ReferenceAudioPath,
		Language:       params.Language,
		Temperature:    params.Temperature,
		CFGWeight:      params.GuidanceWeight,
		Exaggeration:   params.Exaggeration,
	})
	if err != nil {
		return audio.Waveform{}, err
	}

	return audio.DecodeWAV(audioData)
}

// GenerateSpeech sends a generation request and returns the raw WAV data.
func (c *HTTPModel) GenerateSpeech(ctx context.Context, req GenerateRequest) ([]byte, error) {
	if req.Text == "" {
		return nil, ErrEmptyInput
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiGenerateSpeech,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeWAV)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to inference service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	contentType := resp.Header.Get(headerContentType)
	if !isWAVContentType(contentType) {
		return nil, fmt.Errorf(errUnexpectedContentType, contentType)
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}

	if len(audioData) == 0 {
		return nil, ErrEmptyAudio
	}

	return audioData, nil
}

// HealthCheck verifies that the inference server is up and reports healthy.
func (c *HTTPModel) HealthCheck(ctx context.Context) (HealthResponse, error) {
	var health HealthResponse

	resp, err := c.get(ctx, apiHealth)
	if err != nil {
		return health, fmt.Errorf("health check failed for service at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return health, fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	err = json.NewDecoder(resp.Body).Decode(&health)
	if err != nil {
		return health, fmt.Errorf("failed to decode health response: %w", err)
	}

	return health, nil
}

func (c *HTTPModel) fetchLanguages(ctx context.Context) (map[string]string, error) {
	resp, err := c.get(ctx, apiLanguages)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch languages from %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp)
	}

	var payload languagesResponse

	err = json.NewDecoder(resp.Body).Decode(&payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode languages response: %w", err)
	}

	return payload.Languages, nil
}

func (c *HTTPModel) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(headerAccept, contentTypeJSON)

	return c.httpClient.Do(req)
}

// isWAVContentType accepts the WAV media types with or without parameters.
func isWAVContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	switch mediaType {
	case contentTypeWAV, contentTypeXWAV, contentTypeWAVE:
		return true
	default:
		return false
	}
}

// parseErrorResponse decodes a structured error, falling back to the raw body.
func parseErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, readErr)
	}

	var errorResp ServiceErrorResponse

	err := json.Unmarshal(body, &errorResp)
	if err == nil && errorResp.Detail != "" {
		return fmt.Errorf(errFmtServiceErrorWithCode, resp.Status, errorResp.Detail, errorResp.ErrorCode)
	}

	return fmt.Errorf(errFmtServiceNonOKStatus, resp.Status, string(body))
}
