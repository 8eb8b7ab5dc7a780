package providers

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
)

// Image is an inline picture attached to the current turn.
type Image struct {
	MIMEType string
	Data     string // base64, no data: prefix
}

func (i Image) DataURL() string {
	return "data:" + i.MIMEType + ";base64," + i.Data
}

var base64Signatures = []struct {
	prefix string
	mime   string
}{
	{"/9j/", "image/jpeg"},
	{"iVBORw0KGgo", "image/png"},
	{"R0lGOD", "image/gif"},
	{"UklGR", "image/webp"},
}

// ParseImage accepts a data URL or bare base64 and works out the MIME type,
// defaulting to PNG when nothing matches.
func ParseImage(raw string) (Image, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Image{}, errors.New("empty image")
	}

	var declared string
	if rest, ok := strings.CutPrefix(raw, "data:"); ok {
		meta, data, found := strings.Cut(rest, ",")
		if !found {
			return Image{}, errors.New("malformed data url")
		}
		declared, _, _ = strings.Cut(meta, ";")
		raw = data
	}

	img := Image{MIMEType: declared, Data: raw}
	if strings.HasPrefix(img.MIMEType, "image/") {
		return img, nil
	}
	for _, sig := range base64Signatures {
		if strings.HasPrefix(raw, sig.prefix) {
			img.MIMEType = sig.mime
			return img, nil
		}
	}
	img.MIMEType = "image/png"
	if head, err := base64.StdEncoding.DecodeString(raw[:min(len(raw), 64)/4*4]); err == nil {
		if ct := http.DetectContentType(head); strings.HasPrefix(ct, "image/") {
			img.MIMEType = ct
		}
	}
	return img, nil
}

// EncodeImage wraps raw bytes, e.g. a downloaded photo.
func EncodeImage(b []byte) Image {
	return Image{
		MIMEType: imageType(http.DetectContentType(b)),
		Data:     base64.StdEncoding.EncodeToString(b),
	}
}

func imageType(ct string) string {
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/jpeg"
}
