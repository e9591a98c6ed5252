package constants

import "strings"

// AllowedMIMETypes is the readiness allow-list: a document whose content
// type is not listed here stays not_ready and never gets an extraction job.
var AllowedMIMETypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
}

// Stage names the blob-storage slot an artifact belongs to.
type Stage string

const (
	StageRaw       Stage = "raw"       // original upload
	StageOCR       Stage = "ocr"       // normalized extraction JSON
	StageLLM       Stage = "llm"       // extracted fields JSON
	StageAnnotated Stage = "annotated" // overlay PNG
)

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MIMEFromExt maps a file extension to the MIME type used for the
// readiness check. Unknown extensions map to application/octet-stream.
func MIMEFromExt(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// ExtFromMIME is the inverse mapping, used when building storage keys.
func ExtFromMIME(mime string) string {
	switch mime {
	case "application/pdf":
		return "pdf"
	case "image/png":
		return "png"
	case "image/jpeg":
		return "jpg"
	default:
		return "bin"
	}
}

// MIMEAllowed reports whether the content type is on the allow-list.
func MIMEAllowed(mime string) bool {
	_, ok := AllowedMIMETypes[mime]
	return ok
}
