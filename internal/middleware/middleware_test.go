package middlewareinternal

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logSugar := zap.New(core).Sugar()

	// Create a test handler that returns a simple response
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello, World!"))
	})

	// Wrap the handler with the logging middleware
	handler := LoggingMiddleware(logSugar)(nextHandler)

	// Create a test request
	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	// Serve the request
	handler.ServeHTTP(rec, req)

	// Check the response
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, World!", rec.Body.String())

	// Check the log line
	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/test", fields["uri"])
	assert.Equal(t, int64(http.StatusOK), fields["status"])
	assert.Equal(t, int64(13), fields["size"])
}

func TestGzipMiddleware_NoGzipSupport(t *testing.T) {
	// Create a test handler that returns a simple response
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello, World!"))
	})

	// Wrap the handler with the gzip middleware
	handler := GzipMiddleware(nextHandler)

	// Create a test request without gzip support
	req := httptest.NewRequest("GET", "/test", nil)
	rec := httptest.NewRecorder()

	// Serve the request
	handler.ServeHTTP(rec, req)

	// Check the response
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello, World!", rec.Body.String())
	// Check that no Content-Encoding header is set
	assert.Equal(t, "", rec.Header().Get("Content-Encoding"))
}

func TestGzipMiddleware_WithGzipSupport(t *testing.T) {
	// Create a test handler that returns a simple response
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello, World!"))
	})

	// Wrap the handler with the gzip middleware
	handler := GzipMiddleware(nextHandler)

	// Create a test request with gzip support
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	// Serve the request
	handler.ServeHTTP(rec, req)

	// Check the response
	assert.Equal(t, http.StatusOK, rec.Code)
	// Check that Content-Encoding header is set to gzip
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	// Decompress the response body
	reader, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer reader.Close()

	var decompressed bytes.Buffer
	_, err = io.Copy(&decompressed, reader)
	require.NoError(t, err)

	// Check that the decompressed body is correct
	assert.Equal(t, "Hello, World!", decompressed.String())
}

func TestGzipMiddleware_LargeResponse(t *testing.T) {
	// Create a test handler that returns a large response
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		// Create a large response body
		response := strings.Repeat("Hello, World! ", 1000)
		w.Write([]byte(response))
	})

	// Wrap the handler with the gzip middleware
	handler := GzipMiddleware(nextHandler)

	// Create a test request with gzip support
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()

	// Serve the request
	handler.ServeHTTP(rec, req)

	// Check the response
	assert.Equal(t, http.StatusOK, rec.Code)
	// Check that Content-Encoding header is set to gzip
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))

	// Decompress the response body
	reader, err := gzip.NewReader(rec.Body)
	require.NoError(t, err)
	defer reader.Close()

	var decompressed bytes.Buffer
	_, err = io.Copy(&decompressed, reader)
	require.NoError(t, err)

	// Check that the decompressed body is correct
	expected := strings.Repeat("Hello, World! ", 1000)
	assert.Equal(t, expected, decompressed.String())
}

func TestLoggingResponseWriter_Write(t *testing.T) {
	// Create a test ResponseWriter
	rec := httptest.NewRecorder()

	// Create response data
	responseData := &responseData{
		status: 0,
		size:   0,
	}

	// Create logging response writer
	lw := loggingResponseWriter{
		ResponseWriter: rec,
		responseData:   responseData,
	}

	// Write some data
	data := []byte("Hello, World!")
	size, err := lw.Write(data)

	// Check results
	assert.NoError(t, err)
	assert.Equal(t, len(data), size)
	assert.Equal(t, len(data), responseData.size)
}

func TestLoggingResponseWriter_WriteHeader(t *testing.T) {
	// Create a test ResponseWriter
	rec := httptest.NewRecorder()

	// Create response data
	responseData := &responseData{
		status: 0,
		size:   0,
	}

	// Create logging response writer
	lw := loggingResponseWriter{
		ResponseWriter: rec,
		responseData:   responseData,
	}

	// Write header
	lw.WriteHeader(http.StatusNotFound)

	// Check results
	assert.Equal(t, http.StatusNotFound, responseData.status)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := BearerAuth("secret")(nextHandler)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer secret", want: http.StatusNoContent},
		{name: "wrong token", header: "Bearer guess", want: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic c2VjcmV0", want: http.StatusUnauthorized},
		{name: "missing", header: "", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/metrics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	// Empty token disables the check
	rec := httptest.NewRecorder()
	BearerAuth("")(nextHandler).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRateLimit(t *testing.T) {
	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(rate.NewLimiter(rate.Every(time.Hour), 2))(nextHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/trigger", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
