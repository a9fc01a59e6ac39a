package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry() *Registry {
	policy := RetryPolicy{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  1,
	}
	return NewRegistry(nil, policy, testLogger())
}

func collect(seq iter.Seq[models.Candidate]) []models.Candidate {
	var out []models.Candidate
	for c := range seq {
		out = append(out, c)
	}
	return out
}

func fetchAll(t *testing.T, cfg models.SourceConfig) []models.Candidate {
	t.Helper()
	src, err := testRegistry().Build(cfg)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	seq, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	return collect(seq)
}

func serve(contentType, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		fmt.Fprint(w, body)
	}))
}

const rssFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:ev="http://purl.org/rss/1.0/modules/event/" xmlns:georss="http://www.georss.org/georss">
<channel>
  <title>Hof Kalender</title>
  <item>
    <title>Jazz Night</title>
    <link>https://example.org/jazz</link>
    <description>&lt;p&gt;Live im &lt;b&gt;Park&lt;/b&gt;&lt;/p&gt;</description>
    <pubDate>Mon, 02 Mar 2026 10:00:00 +0100</pubDate>
    <category>music</category>
    <ev:startdate>2026-03-14T20:00:00+01:00</ev:startdate>
    <ev:location>Stadtpark Hof</ev:location>
    <georss:point>50.31 11.92</georss:point>
    <enclosure url="https://example.org/jazz.jpg" type="image/jpeg" length="1000"/>
  </item>
  <item>
    <title></title>
    <link>https://example.org/empty</link>
  </item>
  <item>
    <title>Flohmarkt</title>
    <guid>https://example.org/floh</guid>
    <pubDate>Sat, 04 Apr 2026 08:00:00 +0200</pubDate>
  </item>
</channel>
</rss>`

func TestRSSSource_Fetch(t *testing.T) {
	srv := serve("application/rss+xml", rssFeed)
	defer srv.Close()

	got := fetchAll(t, models.SourceConfig{Name: "hof-rss", URL: srv.URL, Type: models.SourceKindRSS})
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 (untitled item skipped)", len(got))
	}

	jazz := got[0]
	if jazz.Title != "Jazz Night" {
		t.Errorf("Title = %q", jazz.Title)
	}
	if jazz.Start != "2026-03-14T20:00:00+01:00" {
		t.Errorf("Start = %q, want event module start date", jazz.Start)
	}
	if jazz.Description != "Live im Park" {
		t.Errorf("Description = %q, want tags stripped", jazz.Description)
	}
	if jazz.LocationName != "Stadtpark Hof" {
		t.Errorf("LocationName = %q", jazz.LocationName)
	}
	if jazz.Lat == nil || *jazz.Lat != 50.31 || *jazz.Lon != 11.92 {
		t.Errorf("coords = %v,%v, want 50.31,11.92", jazz.Lat, jazz.Lon)
	}
	if jazz.ImageURL != "https://example.org/jazz.jpg" {
		t.Errorf("ImageURL = %q", jazz.ImageURL)
	}
	if jazz.SourceName != "hof-rss" || jazz.SourceKind != models.SourceKindRSS {
		t.Errorf("source = %s/%s", jazz.SourceName, jazz.SourceKind)
	}

	floh := got[1]
	if floh.URL != "https://example.org/floh" {
		t.Errorf("URL = %q, want guid fallback", floh.URL)
	}
	if floh.Start != "Sat, 04 Apr 2026 08:00:00 +0200" {
		t.Errorf("Start = %q, want pubDate fallback", floh.Start)
	}
}

func TestRSSSource_Atom(t *testing.T) {
	feed := `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:georss="http://www.georss.org/georss">
  <title>Kulturamt</title>
  <entry>
    <title>Ausstellung: Fotografie</title>
    <link href="https://example.org/foto"/>
    <id>urn:uuid:1</id>
    <updated>2026-03-20T10:00:00Z</updated>
    <summary>Vernissage im Museum</summary>
    <category term="culture"/>
    <georss:point>50.32 11.91</georss:point>
  </entry>
</feed>`
	srv := serve("application/atom+xml", feed)
	defer srv.Close()

	got := fetchAll(t, models.SourceConfig{Name: "kultur", URL: srv.URL, Type: models.SourceKindRSS})
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	c := got[0]
	if c.Title != "Ausstellung: Fotografie" || c.URL != "https://example.org/foto" {
		t.Errorf("candidate = %+v", c)
	}
	if c.Start != "2026-03-20T10:00:00Z" || c.Category != "culture" || c.Description != "Vernissage im Museum" {
		t.Errorf("candidate = %+v", c)
	}
	if c.Lat == nil || *c.Lat != 50.32 {
		t.Errorf("Lat = %v, want 50.32", c.Lat)
	}
}

func TestRSSSource_EmptyAndBroken(t *testing.T) {
	t.Run("empty feed", func(t *testing.T) {
		srv := serve("application/rss+xml", `<rss version="2.0"><channel><title>leer</title></channel></rss>`)
		defer srv.Close()
		if got := fetchAll(t, models.SourceConfig{Name: "leer", URL: srv.URL, Type: models.SourceKindRSS}); len(got) != 0 {
			t.Errorf("got %d candidates, want 0", len(got))
		}
	})

	t.Run("html instead of feed", func(t *testing.T) {
		srv := serve("text/html", `<html><body>Wartungsarbeiten</body></html>`)
		defer srv.Close()

		src, _ := testRegistry().Build(models.SourceConfig{Name: "kaputt", URL: srv.URL, Type: models.SourceKindRSS})
		_, err := src.Fetch(context.Background())
		var unavailable *SourceUnavailableError
		if !errors.As(err, &unavailable) || unavailable.Source != "kaputt" {
			t.Errorf("Fetch() error = %v, want SourceUnavailableError", err)
		}
	})
}

func TestSource_ServerErrorRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src, _ := testRegistry().Build(models.SourceConfig{Name: "down", URL: srv.URL, Type: models.SourceKindJSON})
	_, err := src.Fetch(context.Background())

	var unavailable *SourceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("Fetch() error = %v, want SourceUnavailableError", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("server hit %d times, want 2 (one retry)", got)
	}
}

func TestHTMLSource_Selectors(t *testing.T) {
	page := `<html><body><div class="listing">
  <div class="ev"><h3>Jazz Night</h3><span class="when">14.03.2026</span><span class="where">Stadtpark Hof</span><a href="/jazz">mehr</a></div>
  <div class="ev"><h3>Lesung</h3><span class="when">2026-04-01 19:30</span><span class="where">Stadtbücherei</span></div>
</div></body></html>`
	srv := serve("text/html; charset=utf-8", page)
	defer srv.Close()

	got := fetchAll(t, models.SourceConfig{
		Name: "hof-html",
		URL:  srv.URL,
		Type: models.SourceKindHTML,
		Options: models.SourceOptions{
			ItemSelector:     ".ev",
			TitleSelector:    "h3",
			DateSelector:     ".when",
			LocationSelector: ".where",
		},
	})
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}

	want := []struct{ title, start, location, url string }{
		{"Jazz Night", "14.03.2026", "Stadtpark Hof", srv.URL + "/jazz"},
		{"Lesung", "2026-04-01 19:30", "Stadtbücherei", ""},
	}
	for i, w := range want {
		c := got[i]
		if c.Title != w.title || c.Start != w.start || c.LocationName != w.location || c.URL != w.url {
			t.Errorf("candidate %d = {%q %q %q %q}, want %+v", i, c.Title, c.Start, c.LocationName, c.URL, w)
		}
		if c.NeedsExtraction() {
			t.Errorf("candidate %d needs extraction", i)
		}
	}
}

func TestHTMLSource_Heuristics(t *testing.T) {
	page := `<html><body><ul>
  <li><time datetime="2026-05-01T18:00">1. Mai</time> <h4>Maibaumfest</h4> <address>Dorfplatz</address></li>
  <li><time>bald</time> Sommerkonzert im Hof, Infos folgen</li>
</ul></body></html>`
	srv := serve("text/html", page)
	defer srv.Close()

	got := fetchAll(t, models.SourceConfig{Name: "dorf", URL: srv.URL, Type: models.SourceKindHTML})
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}

	if got[0].Title != "Maibaumfest" || got[0].Start != "2026-05-01T18:00" || got[0].LocationName != "Dorfplatz" {
		t.Errorf("structured item = %+v", got[0])
	}
	if !got[1].NeedsExtraction() {
		t.Fatalf("unparseable item should need extraction: %+v", got[1])
	}
	if got[1].RawText != "bald\nSommerkonzert im Hof, Infos folgen" {
		t.Errorf("RawText = %q", got[1].RawText)
	}
}

func TestFindDate(t *testing.T) {
	tests := map[string]string{
		"Am 14.03.2026 ab 20:00 Uhr":   "14.03.2026 20:00",
		"Termin: 1.4.2026, 9:30":       "1.4.2026 9:30",
		"2026-04-01T19:30 Beginn":      "2026-04-01T19:30",
		"14.03.2026, Einlass 19 Uhr":   "14.03.2026",
		"Demnächst, genaueres folgt":   "",
		"Samstag 04.04.2026 um 8:00 h": "04.04.2026 08:00",
	}
	for in, want := range tests {
		if got := findDate(in); got != want {
			t.Errorf("findDate(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestJSONSource_FieldMapping(t *testing.T) {
	doc := `{"data": {"events": [
  {"name": "Stadtlauf", "startDate": "2026-05-10T09:00", "venue": {"name": "Marktplatz", "geo": {"lat": 50.3, "lng": "11.9"}}, "tags": "sports", "link": "https://example.org/lauf"},
  {"name": "Ohne Datum"},
  "not an object"
]}}`
	srv := serve("application/json", doc)
	defer srv.Close()

	got := fetchAll(t, models.SourceConfig{
		Name: "stadt-api",
		URL:  srv.URL,
		Type: models.SourceKindJSON,
		Options: models.SourceOptions{
			ItemsPath: "data.events",
			Fields: map[string]string{
				"title":    "name",
				"start":    "startDate",
				"location": "venue",
				"lat":      "venue.geo.lat",
				"lon":      "venue.geo.lng",
				"category": "tags",
				"url":      "link",
			},
		},
	})
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}

	c := got[0]
	if c.Title != "Stadtlauf" || c.Start != "2026-05-10T09:00" || c.LocationName != "Marktplatz" {
		t.Errorf("candidate = %+v", c)
	}
	if c.Lat == nil || *c.Lat != 50.3 || c.Lon == nil || *c.Lon != 11.9 {
		t.Errorf("coords = %v,%v, want 50.3,11.9", c.Lat, c.Lon)
	}
	if c.Category != "sports" || c.URL != "https://example.org/lauf" {
		t.Errorf("category/url = %q/%q", c.Category, c.URL)
	}
	if got[1].Start != "" {
		t.Errorf("second Start = %q, want empty", got[1].Start)
	}
}

func TestJSONSource_BadItemsPath(t *testing.T) {
	srv := serve("application/json", `{"events": {"count": 0}}`)
	defer srv.Close()

	src, _ := testRegistry().Build(models.SourceConfig{
		Name:    "api",
		URL:     srv.URL,
		Type:    models.SourceKindJSON,
		Options: models.SourceOptions{ItemsPath: "events"},
	})
	_, err := src.Fetch(context.Background())
	var unavailable *SourceUnavailableError
	if !errors.As(err, &unavailable) {
		t.Errorf("Fetch() error = %v, want SourceUnavailableError", err)
	}
}

func TestImageSource_Page(t *testing.T) {
	page := `<html><body>
<img src="/a.jpg"><img src="/a.jpg"><img src="/b.png">
<img src="data:image/png;base64,AAAA"><img src="/missing.jpg"><img src="/notes.txt">
</body></html>`
	var downloads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, page)
		case "/a.jpg":
			downloads.Add(1)
			w.Header().Set("Content-Type", "image/jpeg")
			fmt.Fprint(w, "jpeg-a")
		case "/b.png":
			downloads.Add(1)
			w.Header().Set("Content-Type", "image/png")
			fmt.Fprint(w, "png-b")
		case "/notes.txt":
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprint(w, "hello")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := testRegistry().Build(models.SourceConfig{Name: "flyers", URL: srv.URL + "/", Type: models.SourceKindImage})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	seq, err := src.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if downloads.Load() != 0 {
		t.Error("images downloaded before the sequence was consumed")
	}

	got := collect(seq)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].ImageURL != srv.URL+"/a.jpg" || string(got[0].Image) != "jpeg-a" {
		t.Errorf("first = %s %q", got[0].ImageURL, got[0].Image)
	}
	if !got[1].NeedsExtraction() {
		t.Error("image candidate should need extraction")
	}
}

func TestImageSource_DirectImage(t *testing.T) {
	srv := serve("image/jpeg", "raw-jpeg")
	defer srv.Close()

	got := fetchAll(t, models.SourceConfig{Name: "flyer", URL: srv.URL, Type: models.SourceKindImage})
	if len(got) != 1 || string(got[0].Image) != "raw-jpeg" {
		t.Fatalf("got %+v, want one image candidate", got)
	}
}

func TestSocialSource_Fetch(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flyer.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			fmt.Fprint(w, "flyer")
		default:
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"posts": [
  {"message": "Lauftreff am Donnerstag, 18 Uhr am Stadion", "link": "https://example.org/p/1"},
  {"message": "", "picture": "%s/flyer.jpg"},
  {"message": ""}
]}`, srv.URL)
		}
	}))
	defer srv.Close()

	got := fetchAll(t, models.SourceConfig{
		Name: "verein",
		URL:  srv.URL + "/feed",
		Type: models.SourceKindSocial,
		Options: models.SourceOptions{
			Fields: map[string]string{"text": "message", "image": "picture", "url": "link"},
		},
	})
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[0].RawText != "Lauftreff am Donnerstag, 18 Uhr am Stadion" || got[0].URL != "https://example.org/p/1" {
		t.Errorf("text post = %+v", got[0])
	}
	if string(got[1].Image) != "flyer" {
		t.Errorf("image post payload = %q", got[1].Image)
	}
	for i, c := range got {
		if !c.NeedsExtraction() {
			t.Errorf("post %d should need extraction", i)
		}
	}
}

func TestRegistry_Build(t *testing.T) {
	r := testRegistry()
	tests := []struct {
		kind models.SourceKind
		want string
	}{
		{models.SourceKindRSS, "*ingestion.RSSSource"},
		{models.SourceKindHTML, "*ingestion.HTMLSource"},
		{models.SourceKindJSON, "*ingestion.JSONSource"},
		{models.SourceKindImage, "*ingestion.ImageSource"},
		{models.SourceKindSocial, "*ingestion.SocialSource"},
	}
	for _, tt := range tests {
		src, err := r.Build(models.SourceConfig{Name: "s", URL: "http://example.org", Type: tt.kind})
		if err != nil {
			t.Fatalf("Build(%s) error = %v", tt.kind, err)
		}
		if got := fmt.Sprintf("%T", src); got != tt.want {
			t.Errorf("Build(%s) = %s, want %s", tt.kind, got, tt.want)
		}
		if src.Kind() != tt.kind {
			t.Errorf("Kind() = %s, want %s", src.Kind(), tt.kind)
		}
	}

	if _, err := r.Build(models.SourceConfig{Name: "s", URL: "http://example.org", Type: "ftp"}); err == nil {
		t.Error("Build() accepted unknown type")
	}
	if _, err := r.Build(models.SourceConfig{Name: "s", URL: "http://example.org", Type: models.SourceKindJSON,
		Options: models.SourceOptions{Fields: map[string]string{"weather": "w"}}}); err == nil {
		t.Error("Build() accepted unknown field mapping")
	}
}

func TestRegistry_BuildAll(t *testing.T) {
	disabled := false
	sources, errs := testRegistry().BuildAll([]models.SourceConfig{
		{Name: "a", URL: "http://example.org/a", Type: models.SourceKindRSS},
		{Name: "b", URL: "http://example.org/b", Type: models.SourceKindHTML, Enabled: &disabled},
		{Name: "c", URL: "", Type: models.SourceKindJSON},
		{Name: "d", URL: "http://example.org/d", Type: models.SourceKindImage},
	})
	if len(sources) != 2 || sources[0].Name() != "a" || sources[1].Name() != "d" {
		t.Errorf("sources = %v, want a and d", sources)
	}
	if len(errs) != 1 {
		t.Errorf("errs = %v, want 1", errs)
	}
}
