package server

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// HEADER_REQUEST_ID carries the request identifier in both directions.
const HEADER_REQUEST_ID = "X-Request-ID"

const (
	maxRequestIDLength = 128
	unmatchedRoute     = "unmatched"
)

type requestIDKey struct{}

// RequestID returns the identifier assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey{}).(string)

	return requestID
}

// withRequestID keeps a caller-supplied X-Request-ID or assigns a new uuid.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		requestID := request.Header.Get(HEADER_REQUEST_ID)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		responseWriter.Header().Set(HEADER_REQUEST_ID, requestID)
		ctx := context.WithValue(request.Context(), requestIDKey{}, requestID)

		next.ServeHTTP(responseWriter, request.WithContext(ctx))
	})
}

// withCORS allows any origin and answers preflight requests directly.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		header := responseWriter.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Expose-Headers", HEADER_REQUEST_ID+", "+headerContentDisposition)

		if request.Method == http.MethodOptions && request.Header.Get("Access-Control-Request-Method") != "" {
			header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			header.Set("Access-Control-Allow-Headers", "*")
			header.Set("Access-Control-Max-Age", "600")
			responseWriter.WriteHeader(http.StatusNoContent)

			return
		}

		next.ServeHTTP(responseWriter, request)
	})
}

// withLogging logs each request and reports it to the observer.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: responseWriter, status: http.StatusOK}

		next.ServeHTTP(recorder, request)

		s.log.Info(
			"HTTP %s %s -> %d (%s) [%s]",
			request.Method,
			request.URL.Path,
			recorder.status,
			time.Since(start).Round(time.Millisecond),
			RequestID(request.Context()),
		)

		if s.observer != nil {
			route := request.Pattern
			if route == "" {
				route = unmatchedRoute
			}

			s.observer.ObserveHTTP(route, recorder.status)
		}
	})
}

// withRecovery turns a handler panic into a 500 reply.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}

			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			s.log.Error("Recovered from handler panic [%s]: %v", RequestID(request.Context()), recovered)
			s.writeError(responseWriter, http.StatusInternalServerError, "Internal server error")
		}()

		next.ServeHTTP(responseWriter, request)
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}

	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(data []byte) (int, error) {
	r.wroteHeader = true

	return r.ResponseWriter.Write(data)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
