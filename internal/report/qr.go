package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// SchemaDigestToQR creates a QR code PNG encoding the schema digest.
func SchemaDigestToQR(digest string, size int) ([]byte, error) {
	normalized := sanitizeHash(digest)
	if normalized == "" {
		return nil, fmt.Errorf("schema digest is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode("sha256:"+normalized, qrcode.Medium, size)
}

func sanitizeHash(hash string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(hash)) {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
