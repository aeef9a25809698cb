package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"gagyebu/internal/core"
)

const (
	userIDHeader = "X-User-ID"
	// multipart overhead allowed on top of the file size limit
	formOverhead = 64 << 10
)

var errBadRequest = errors.New("bad request")

// Upload is a statement file received in a multipart form.
type Upload struct {
	Filename string
	Data     []byte
}

// ReadUpload reads the "file" part of a multipart request. Files larger than
// maxBytes fail with an error wrapping *http.MaxBytesError.
func ReadUpload(w http.ResponseWriter, r *http.Request, maxBytes int64) (Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)
	if err := r.ParseMultipartForm(maxBytes + formOverhead); err != nil {
		if isTooLarge(err) {
			return Upload{}, &http.MaxBytesError{Limit: maxBytes}
		}
		return Upload{}, fmt.Errorf("%w: parse multipart form: %v", errBadRequest, err)
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		return Upload{}, fmt.Errorf("%w: missing file field", errBadRequest)
	}
	defer f.Close()

	if header.Size > maxBytes {
		return Upload{}, &http.MaxBytesError{Limit: maxBytes}
	}
	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return Upload{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return Upload{}, &http.MaxBytesError{Limit: maxBytes}
	}

	return Upload{Filename: sanitizeInput(header.Filename), Data: data}, nil
}

// ParseMapping decodes the "mapping" form value, an object of field to
// column reference.
func ParseMapping(raw string) (core.ColumnMapping, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: mapping is required", core.ErrInvalidMapping)
	}
	var m core.ColumnMapping
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		if errors.Is(err, core.ErrInvalidMapping) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidMapping, err)
	}
	return m, nil
}

// UserID returns the caller set by the authentication proxy, or fallback.
func UserID(r *http.Request, fallback string) string {
	if id := sanitizeInput(r.Header.Get(userIDHeader)); id != "" {
		return id
	}
	return fallback
}

// ClientIP extracts the client address, considering proxies.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return strings.TrimSpace(ip)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "request body too large")
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
