// Package datauri converts between base64 data URIs and binary payloads.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// DefaultMIMEType is used when the descriptor header names no media type (RFC 2397).
const DefaultMIMEType = "text/plain"

var (
	ErrMalformed = errors.New("malformed data URI")
	ErrNotBase64 = errors.New("data URI is not base64 encoded")
)

// Decode splits a "data:<mime>;base64,<body>" descriptor and returns the
// MIME type from the header segment and the decoded body.
func Decode(uri string) (string, []byte, error) {
	header, body, found := strings.Cut(uri, ",")
	if !found {
		return "", nil, fmt.Errorf("%w: missing comma", ErrMalformed)
	}

	scheme, params, ok := strings.Cut(header, ":")
	if !ok || !strings.EqualFold(scheme, "data") {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrMalformed)
	}

	parts := strings.Split(params, ";")
	mimeType := strings.TrimSpace(parts[0])
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}

	isBase64 := false
	for _, p := range parts[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return "", nil, ErrNotBase64
	}

	payload, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode data URI body: %w", err)
	}

	return mimeType, payload, nil
}

// Encode builds a base64 data URI for payload.
func Encode(mimeType string, payload []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

// Body returns the text after the first comma of a data URI.
func Body(uri string) string {
	_, body, _ := strings.Cut(uri, ",")
	return body
}
