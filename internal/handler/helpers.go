package handler

import (
	"bytes"
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/klauspost/compress/gzip"

	"github.com/Schera-ole/fleetagent/internal/delivery"
)

const maxRequestBody = 8 << 20

var (
	errMissingSignature = errors.New("missing signature")
	errSignatureFormat  = errors.New("invalid hash format")
	errSignatureInvalid = errors.New("hash mismatch")
)

// VerifyRequestHash checks headerHash against the HMAC of body as sent on
// the wire. Any body passes when key is empty.
func VerifyRequestHash(body []byte, headerHash string, key string) error {
	if key == "" {
		return nil
	}
	if headerHash == "" {
		return errMissingSignature
	}
	headerHashBytes, err := hex.DecodeString(headerHash)
	if err != nil {
		return errSignatureFormat
	}
	calculated, _ := hex.DecodeString(delivery.Sign(body, key))
	if !hmac.Equal(headerHashBytes, calculated) {
		return errSignatureInvalid
	}
	return nil
}

func DecompressBody(body []byte) ([]byte, error) {
	gzipReader, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	decompressedData, err := io.ReadAll(io.LimitReader(gzipReader, maxRequestBody+1))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress data: %w", err)
	}
	if len(decompressedData) > maxRequestBody {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes", maxRequestBody)
	}
	return decompressedData, nil
}

func ReadRequestBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	r.Body.Close()
	return body, nil
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
