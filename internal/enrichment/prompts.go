package enrichment

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/STRATINT/eventcurator/internal/models"
)

// maxPromptText bounds the text sent to a provider.
const maxPromptText = 4000

// SystemPrompt instructs chat models to answer with a single JSON object.
const SystemPrompt = `You extract local event announcements from text (web pages, social posts, OCR output of flyers). Output ONLY one JSON object, no markdown, no commentary.

If the text announces an event, answer:
{"event": true, "title": "...", "description": "...", "start": "YYYY-MM-DDTHH:MM", "end": "YYYY-MM-DDTHH:MM or empty", "location": "venue and town", "lat": number or null, "lon": number or null, "category": "one of: music, sports, community, culture, theatre, family, market, education, nightlife, other"}

If it does not, answer: {"event": false}

Rules: use local time without offset; use "YYYY-MM-DD" for start when no time is given; never invent coordinates; keep the title short and in the original language.`

// BuildExtractionPrompt creates the user prompt for text.
func BuildExtractionPrompt(text string, hint Hint) string {
	var b strings.Builder
	b.WriteString("Extract the event from the following text.\n")
	if !hint.Now.IsZero() {
		fmt.Fprintf(&b, "TODAY: %s\n", hint.Now.In(hint.Location).Format("2006-01-02 (Monday)"))
	}
	if hint.TakenAt != nil {
		fmt.Fprintf(&b, "PHOTO TAKEN: %s\n", hint.TakenAt.Format("2006-01-02"))
	}
	if hint.Place != "" {
		fmt.Fprintf(&b, "DEFAULT PLACE: %s\n", hint.Place)
	}
	if hint.Source != "" {
		fmt.Fprintf(&b, "SOURCE: %s\n", hint.Source)
	}
	b.WriteString("\nTEXT:\n")
	b.WriteString(truncate(text, maxPromptText))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

var (
	fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*({.+})\\s*```")
	rawJSONPattern    = regexp.MustCompile("(?s)({.+})")
)

// extractedEvent is the JSON shape providers answer with.
type extractedEvent struct {
	Event       *bool    `json:"event"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Location    string   `json:"location"`
	Lat         *float64 `json:"lat"`
	Lon         *float64 `json:"lon"`
	Category    string   `json:"category"`
}

// ParseExtraction converts a provider answer into a candidate. JSON may be
// wrapped in a markdown fence or surrounded by prose.
func ParseExtraction(answer string) (*models.Candidate, error) {
	jsonStr := strings.TrimSpace(answer)
	if m := fencedJSONPattern.FindStringSubmatch(answer); len(m) > 1 {
		jsonStr = m[1]
	} else if m := rawJSONPattern.FindStringSubmatch(answer); len(m) > 1 {
		jsonStr = m[1]
	}

	if jsonStr == "" || jsonStr == "null" || strings.EqualFold(jsonStr, "none") {
		return nil, ErrNoEvent
	}

	var raw extractedEvent
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse provider response as JSON: %w (first 200 chars: %.200s)", err, answer)
	}

	if raw.Event != nil && !*raw.Event {
		return nil, ErrNoEvent
	}
	if strings.TrimSpace(raw.Title) == "" || strings.TrimSpace(raw.Start) == "" {
		return nil, ErrNoEvent
	}

	c := &models.Candidate{
		Title:        strings.TrimSpace(raw.Title),
		Description:  strings.TrimSpace(raw.Description),
		Start:        strings.TrimSpace(raw.Start),
		End:          strings.TrimSpace(raw.End),
		LocationName: strings.TrimSpace(raw.Location),
		Category:     raw.Category,
	}
	if raw.Lat != nil && raw.Lon != nil {
		c.Lat, c.Lon = raw.Lat, raw.Lon
	}
	return c, nil
}
