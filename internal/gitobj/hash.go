// Package gitobj computes git blob object hashes for local files so
// their content can be compared against the remote tree without
// downloading it.
package gitobj

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
)

// textProbeLen is how many leading bytes are inspected for NUL bytes
// when deciding whether content is text.
const textProbeLen = 8192

// isTextContent reports whether content looks like text: no NUL byte
// within the first 8 KiB.
func isTextContent(content []byte) bool {
	probe := content
	if len(probe) > textProbeLen {
		probe = probe[:textProbeLen]
	}
	return !bytes.ContainsRune(probe, 0)
}

// normalizeLineEndings rewrites CRLF and standalone CR to LF. Git
// stores text blobs with LF endings, so local files checked out with
// CRLF must be normalized before hashing or every comparison would
// report a mismatch.
func normalizeLineEndings(content []byte) []byte {
	if !bytes.ContainsRune(content, '\r') {
		return content
	}
	normalized := make([]byte, 0, len(content))
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' {
			if i+1 < len(content) && content[i+1] == '\n' {
				i++
			}
			normalized = append(normalized, '\n')
			continue
		}
		normalized = append(normalized, content[i])
	}
	return normalized
}

// HashBytes computes the git blob SHA-1 of content, applying the same
// line-ending normalization git applies to text blobs. The digest
// covers the header "blob <len>\x00" followed by the (possibly
// normalized) content, hex-encoded lowercase.
func HashBytes(content []byte) string {
	if isTextContent(content) {
		content = normalizeLineEndings(content)
	}

	h := sha1.New()
	fmt.Fprintf(h, "blob %d\x00", len(content))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile computes the git blob SHA-1 of the file at path.
func HashFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	return HashBytes(content), nil
}
