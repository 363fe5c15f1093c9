// Package checksum is the integrity gate a downloaded image must pass
// before it is trusted as a mount source.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Error identifies the artifact that failed validation and why.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("checksum for %s failed: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Validate hashes r from its current position to EOF and compares the
// SHA-256 digest against expected, a hex string compared byte-wise
// after decoding so letter case is irrelevant. The caller must have
// rewound r to the start of the content.
func Validate(r io.Reader, expected string) error {
	want, err := hex.DecodeString(expected)
	if err != nil {
		return fmt.Errorf("malformed expected digest %q: %w", expected, err)
	}
	if len(want) != sha256.Size {
		return fmt.Errorf("expected digest has %d bytes, want %d", len(want), sha256.Size)
	}

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return fmt.Errorf("reading content: %w", err)
	}
	got := h.Sum(nil)
	if !bytes.Equal(got, want) {
		return fmt.Errorf("digest mismatch: got %s, expected %s", hex.EncodeToString(got), expected)
	}
	return nil
}

// ValidateFile wraps a failed Validate with the artifact's path.
func ValidateFile(r io.Reader, path, expected string) error {
	if err := Validate(r, expected); err != nil {
		return &Error{Path: path, Err: err}
	}
	return nil
}
