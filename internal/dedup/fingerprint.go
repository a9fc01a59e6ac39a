package dedup

import (
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/STRATINT/eventcurator/internal/models"
)

// idNamespace scopes the name-based event IDs.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/STRATINT/eventcurator/events"))

// Fingerprint hashes the comparison title and the start instant (UTC,
// minute precision). It ignores whitespace, case, punctuation and the zone
// the start was expressed in.
func Fingerprint(e models.Event) string {
	key := TitleKey(e.Title) + "|" + e.Start.UTC().Truncate(time.Minute).Format("2006-01-02T15:04Z")
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// EventID derives a stable UUIDv5 from the comparison title, the local
// start date and the location name, so re-scraping the same event yields
// the same ID.
func EventID(e models.Event, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	name := TitleKey(e.Title) + "|" + e.Start.In(loc).Format("2006-01-02") + "|" + TitleKey(e.Location.Name)
	return uuid.NewSHA1(idNamespace, []byte(name)).String()
}
