package use_case

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jDay-whyT/converterBot-backend/internal/convert"
)

var rawSuffixes = map[string]struct{}{
	".dng": {}, ".cr2": {}, ".cr3": {}, ".nef": {}, ".nrw": {}, ".arw": {},
	".raf": {}, ".rw2": {}, ".orf": {}, ".pef": {}, ".srw": {}, ".x3f": {},
	".3fr": {}, ".iiq": {}, ".dcr": {}, ".kdc": {}, ".mrw": {},
}

var heifSuffixes = map[string]struct{}{
	".heic": {},
	".heif": {},
}

var directSuffixes = map[string]struct{}{
	".webp": {},
	".tif":  {},
	".tiff": {},
}

var rawMIMEs = map[string]struct{}{
	"image/x-adobe-dng":      {},
	"image/x-canon-cr2":      {},
	"image/x-canon-cr3":      {},
	"image/x-nikon-nef":      {},
	"image/x-nikon-nrw":      {},
	"image/x-sony-arw":       {},
	"image/x-fuji-raf":       {},
	"image/x-panasonic-rw2":  {},
	"image/x-olympus-orf":    {},
	"image/x-pentax-pef":     {},
	"image/x-samsung-srw":    {},
	"image/x-sigma-x3f":      {},
	"image/x-hasselblad-3fr": {},
	"image/x-phaseone-iiq":   {},
	"image/x-kodak-dcr":      {},
	"image/x-kodak-kdc":      {},
	"image/x-minolta-mrw":    {},
}

var rawMIMEPrefixes = []string{"image/x-", "image/raw", "image/dng", "image/prs.adobe.dng"}

// Format is where an upload is routed and the suffix its temp file gets.
type Format struct {
	Suffix string
	Route  convert.Route
}

// Classify routes an upload by its file suffix, falling back to the declared
// MIME type when there is no suffix.
func Classify(filename, contentType string) (Format, error) {
	suffix := strings.ToLower(filepath.Ext(filename))

	if _, ok := rawSuffixes[suffix]; ok {
		return Format{Suffix: suffix, Route: convert.RouteRAW}, nil
	}
	if _, ok := heifSuffixes[suffix]; ok {
		return Format{Suffix: suffix, Route: convert.RouteHEIF}, nil
	}
	if _, ok := directSuffixes[suffix]; ok {
		return Format{Suffix: suffix, Route: convert.RouteDirect}, nil
	}
	if suffix == "" && IsRAWMIME(contentType) {
		return Format{Suffix: ".dng", Route: convert.RouteRAW}, nil
	}
	return Format{Suffix: suffix, Route: convert.RouteDirect}, &InputError{Kind: KindBadRequest, Message: "unsupported file extension"}
}

func IsRAWMIME(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if ct == "" {
		return false
	}
	if _, ok := rawMIMEs[ct]; ok {
		return true
	}
	for _, prefix := range rawMIMEPrefixes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

var sniffedDirect = []string{"image/jpeg", "image/png", "image/webp", "image/gif", "image/bmp"}

var sniffedHEIF = map[string]string{
	"image/heic":          ".heic",
	"image/heic-sequence": ".heic",
	"image/heif":          ".heif",
	"image/heif-sequence": ".heif",
}

// Sniff inspects the upload bytes. Plain rasters go to the direct path and
// HEIF containers to the HEIF path whatever the upload claims to be. TIFF is
// not treated as conclusive since most RAW containers are TIFF based.
func Sniff(data []byte) (Format, bool) {
	mime := mimetype.Detect(data)

	for _, m := range sniffedDirect {
		if mime.Is(m) {
			return Format{Suffix: mime.Extension(), Route: convert.RouteDirect}, true
		}
	}
	for m, suffix := range sniffedHEIF {
		if mime.Is(m) {
			return Format{Suffix: suffix, Route: convert.RouteHEIF}, true
		}
	}
	return Format{}, false
}
