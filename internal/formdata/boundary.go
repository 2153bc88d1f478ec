package formdata

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// boundaryLen is the length of generated boundaries, below the RFC 2046 limit of 70.
const boundaryLen = 68

// ErrInvalidBoundary is returned by New when a boundary passed with
// WithBoundary is not a valid RFC 2046 boundary.
var ErrInvalidBoundary = errors.New("formdata: invalid boundary")

// newBoundary mixes the current time with 12 random bytes, encodes them with
// URL-safe base64 and pads the result with dashes.
func newBoundary(random io.Reader, now time.Time) (string, error) {
	var buf [24]byte
	binary.LittleEndian.PutUint32(buf[:4], uint32(now.Nanosecond()))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(now.Unix()))
	if _, err := io.ReadFull(random, buf[12:]); err != nil {
		return "", fmt.Errorf("formdata: failed to generate boundary: %w", err)
	}

	token := base64.URLEncoding.EncodeToString(buf[:])
	return strings.Repeat("-", boundaryLen-len(token)) + token, nil
}

// validateBoundary checks the bcharsnospace grammar of rfc2046#section-5.1.1.
func validateBoundary(boundary string) error {
	if len(boundary) < 1 || len(boundary) > 70 {
		return fmt.Errorf("%w: length %d", ErrInvalidBoundary, len(boundary))
	}
	for _, b := range boundary {
		if 'A' <= b && b <= 'Z' || 'a' <= b && b <= 'z' || '0' <= b && b <= '9' {
			continue
		}
		switch b {
		case '\'', '(', ')', '+', '_', ',', '-', '.', '/', ':', '=', '?':
			continue
		}
		return fmt.Errorf("%w: character %q", ErrInvalidBoundary, b)
	}
	return nil
}
