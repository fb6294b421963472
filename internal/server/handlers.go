package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/book-expert/speech-gateway/internal/tts"
)

const (
	headerContentType        = "Content-Type"
	headerContentDisposition = "Content-Disposition"
	headerContentLength      = "Content-Length"
	contentTypeJSON          = "application/json"
	listObject               = "list"
	detailInternal           = "Speech generation failed"
	detailCanceled           = "Request canceled before synthesis finished"
	detailBadBody            = "Invalid request body"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// InfoResponse is the body of GET /.
type InfoResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	Endpoints   map[string]string `json:"endpoints"`
}

// VoicesResponse is the body of GET /v1/audio/voices.
type VoicesResponse struct {
	Voices []tts.VoiceInfo `json:"voices"`
}

// ModelsResponse is the body of GET /v1/models.
type ModelsResponse struct {
	Object string          `json:"object"`
	Data   []tts.ModelInfo `json:"data"`
}

func (s *Server) handleRoot(responseWriter http.ResponseWriter, _ *http.Request) {
	endpoints := map[string]string{
		"health": "/health",
		"speech": "/v1/audio/speech",
		"voices": "/v1/audio/voices",
		"models": "/v1/models",
	}

	if s.metrics != nil {
		endpoints["metrics"] = "/metrics"
	}

	s.writeJSON(responseWriter, http.StatusOK, InfoResponse{
		Name:        SERVICE_NAME,
		Description: SERVICE_DESCRIPTION,
		Version:     SERVICE_VERSION,
		Endpoints:   endpoints,
	})
}

func (s *Server) handleHealth(responseWriter http.ResponseWriter, _ *http.Request) {
	health := s.speech.Health()

	status := http.StatusOK
	if !health.Healthy() {
		status = http.StatusServiceUnavailable
	}

	s.writeJSON(responseWriter, status, health)
}

func (s *Server) handleVoices(responseWriter http.ResponseWriter, _ *http.Request) {
	s.writeJSON(responseWriter, http.StatusOK, VoicesResponse{Voices: s.speech.Voices()})
}

func (s *Server) handleModels(responseWriter http.ResponseWriter, _ *http.Request) {
	s.writeJSON(responseWriter, http.StatusOK, ModelsResponse{Object: listObject, Data: s.speech.Models()})
}

func (s *Server) handleSpeech(responseWriter http.ResponseWriter, request *http.Request) {
	request.Body = http.MaxBytesReader(responseWriter, request.Body, s.config.MaxBodyBytes)

	var speechRequest tts.SpeechRequest

	err := json.NewDecoder(request.Body).Decode(&speechRequest)
	if err != nil {
		s.writeError(responseWriter, http.StatusBadRequest, fmt.Sprintf("%s: %v", detailBadBody, err))

		return
	}

	speech, err := s.speech.Synthesize(request.Context(), speechRequest)
	if err != nil {
		s.writeSynthesisError(responseWriter, request, err)

		return
	}

	header := responseWriter.Header()
	header.Set(headerContentType, speech.ContentType)
	header.Set(headerContentDisposition, "attachment; filename="+speech.Filename)
	header.Set(headerContentLength, strconv.Itoa(len(speech.Audio)))
	responseWriter.WriteHeader(http.StatusOK)

	_, err = responseWriter.Write(speech.Audio)
	if err != nil {
		s.log.Warn("Failed to write audio response [%s]: %v", RequestID(request.Context()), err)
	}
}

// StatusFor maps an error kind to an HTTP status code.
func StatusFor(err error) int {
	switch tts.KindOf(err) {
	case tts.KindInvalidInput:
		return http.StatusBadRequest
	case tts.KindUnavailable:
		return http.StatusServiceUnavailable
	case tts.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeSynthesisError(responseWriter http.ResponseWriter, request *http.Request, err error) {
	status := StatusFor(err)
	requestID := RequestID(request.Context())

	switch status {
	case http.StatusInternalServerError:
		s.log.Error("Speech generation failed [%s]: %v", requestID, err)
		s.writeError(responseWriter, status, detailInternal)
	case http.StatusRequestTimeout:
		s.log.Warn("Speech request canceled [%s]: %v", requestID, err)
		s.writeError(responseWriter, status, detailCanceled)
	default:
		s.log.Warn("Speech request rejected [%s]: %v", requestID, err)
		s.writeError(responseWriter, status, err.Error())
	}
}

func (s *Server) writeError(responseWriter http.ResponseWriter, status int, detail string) {
	s.writeJSON(responseWriter, status, ErrorResponse{Detail: detail})
}

func (s *Server) writeJSON(responseWriter http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("Failed to encode response: %v", err)

		status = http.StatusInternalServerError
		body = []byte(`{"detail":"Internal server error"}`)
	}

	responseWriter.Header().Set(headerContentType, contentTypeJSON)
	responseWriter.WriteHeader(status)

	_, err = responseWriter.Write(body)
	if err != nil && !errors.Is(err, http.ErrHandlerTimeout) {
		s.log.Warn("Failed to write response: %v", err)
	}
}
