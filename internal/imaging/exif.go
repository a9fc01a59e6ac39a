package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// ErrNoExif means the image carries no readable EXIF block.
var ErrNoExif = errors.New("no exif metadata")

const exifTimeLayout = "2006:01:02 15:04:05"

// Metadata is the subset of EXIF the analyzer uses.
type Metadata struct {
	Lat     *float64
	Lon     *float64
	TakenAt *time.Time
}

// ExifReader extracts GPS position and capture time from image bytes.
type ExifReader interface {
	Read(data []byte) (Metadata, error)
}

// GoexifReader reads EXIF with goexif. Capture times carry no zone and are
// interpreted in Location.
type GoexifReader struct {
	Location *time.Location
}

// NewExifReader creates a reader interpreting capture times in loc.
func NewExifReader(loc *time.Location) *GoexifReader {
	if loc == nil {
		loc = time.UTC
	}
	return &GoexifReader{Location: loc}
}

// Read decodes data. A missing GPS block or capture time is not an error;
// an undecodable EXIF block is ErrNoExif.
func (r *GoexifReader) Read(data []byte) (Metadata, error) {
	var md Metadata

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return md, fmt.Errorf("%w: %v", ErrNoExif, err)
	}

	if lat, lon, err := x.LatLong(); err == nil && validCoords(lat, lon) {
		md.Lat, md.Lon = &lat, &lon
	}

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		raw, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, strings.TrimSpace(raw), r.Location)
		if err != nil {
			continue
		}
		md.TakenAt = &t
		break
	}

	return md, nil
}

// validCoords rejects NaN and the 0,0 placeholder some cameras write.
func validCoords(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	if lat == 0 && lon == 0 {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
