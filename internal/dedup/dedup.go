package dedup

import (
	"cmp"
	"log/slog"
	"slices"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// MergeStats summarises one Merge call.
type MergeStats struct {
	New             int      `json:"new"`
	Merged          int      `json:"merged"`
	AutoRejected    int      `json:"auto_rejected"`
	Ambiguous       int      `json:"ambiguous"`
	NewIDs          []string `json:"new_ids,omitempty"`
	AutoRejectedIDs []string `json:"auto_rejected_ids,omitempty"`
}

// Deduplicator merges validated candidates into the status collections.
// It performs no I/O and is deterministic for a given input.
type Deduplicator struct {
	opts   Options
	logger *slog.Logger
}

// New creates a deduplicator.
func New(opts Options, logger *slog.Logger) *Deduplicator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.TitleSimilarity <= 0 {
		opts.TitleSimilarity = 1.0
	}
	return &Deduplicator{opts: opts, logger: logger}
}

// Prepare normalizes e and assigns its fingerprint and ID.
func (d *Deduplicator) Prepare(e models.Event) models.Event {
	e = Normalize(e, d.opts)
	e.Fingerprint = Fingerprint(e)
	e.ID = EventID(e, d.opts.Location)
	return e
}

// slot addresses a record inside Collections; positions stay valid while
// the slices are only appended to.
type slot struct {
	status models.EventStatus
	index  int
}

type index struct {
	cols          *models.Collections
	byFingerprint map[string]slot
	rejected      map[string]int
	ids           map[string]bool
}

func newIndex(cols *models.Collections) *index {
	ix := &index{
		cols:          cols,
		byFingerprint: make(map[string]slot),
		rejected:      make(map[string]int),
		ids:           make(map[string]bool),
	}
	for _, status := range []models.EventStatus{models.EventStatusPending, models.EventStatusPublished} {
		for i, e := range *cols.Of(status) {
			ix.add(slot{status: status, index: i}, e)
		}
	}
	for i, e := range cols.Rejected {
		if _, ok := ix.rejected[e.Fingerprint]; !ok {
			ix.rejected[e.Fingerprint] = i
		}
		// A later reject must not put the same ID into rejected twice.
		ix.ids[e.ID] = true
	}
	return ix
}

func (ix *index) add(s slot, e models.Event) {
	if _, ok := ix.byFingerprint[e.Fingerprint]; !ok {
		ix.byFingerprint[e.Fingerprint] = s
	}
	ix.ids[e.ID] = true
}

func (ix *index) get(s slot) *models.Event {
	return &(*ix.cols.Of(s.status))[s.index]
}

// Merge folds candidates into cols. For each candidate, in order:
//  1. a fingerprint previously rejected is auto-rejected (when enabled),
//  2. an exact fingerprint match in pending or published is merged,
//  3. a near match (similar title, start within tolerance, distance within
//     threshold when both sides have coordinates) is merged,
//  4. anything else is inserted as pending.
func (d *Deduplicator) Merge(cols *models.Collections, candidates []models.Event, now time.Time) MergeStats {
	prepared := make([]models.Event, len(candidates))
	for i, c := range candidates {
		prepared[i] = d.Prepare(c)
	}
	// Sort so the outcome does not depend on source completion order.
	slices.SortStableFunc(prepared, func(a, b models.Event) int {
		return cmp.Or(
			a.Start.Compare(b.Start),
			cmp.Compare(TitleKey(a.Title), TitleKey(b.Title)),
			cmp.Compare(a.Source.Name, b.Source.Name),
			cmp.Compare(a.Source.URL, b.Source.URL),
			cmp.Compare(a.ImageURL, b.ImageURL),
		)
	})

	var stats MergeStats
	ix := newIndex(cols)

	for _, c := range prepared {
		if d.rejectRecurring(ix, c, now, &stats) {
			continue
		}

		if s, ok := ix.byFingerprint[c.Fingerprint]; ok {
			d.mergeInto(ix, s, c, now)
			stats.Merged++
			continue
		}

		if s, ok := d.nearMatch(ix, c, &stats); ok {
			d.mergeInto(ix, s, c, now)
			stats.Merged++
			continue
		}

		if ix.ids[c.ID] {
			// Same title, day and place as a known record that is either
			// rejected or too far apart to be one event.
			c.ID = c.ID[:24] + c.Fingerprint[:12]
		}
		c.Status = models.EventStatusPending
		c.FirstSeen, c.LastSeen = now, now
		cols.Pending = append(cols.Pending, c)
		ix.add(slot{status: models.EventStatusPending, index: len(cols.Pending) - 1}, c)
		stats.New++
		stats.NewIDs = append(stats.NewIDs, c.ID)
	}

	d.logger.Info("merged candidates",
		"candidates", len(candidates),
		"new", stats.New,
		"merged", stats.Merged,
		"auto_rejected", stats.AutoRejected,
		"ambiguous", stats.Ambiguous,
	)
	return stats
}

func (d *Deduplicator) rejectRecurring(ix *index, c models.Event, now time.Time, stats *MergeStats) bool {
	if !d.opts.RejectRecurring {
		return false
	}
	i, ok := ix.rejected[c.Fingerprint]
	if !ok {
		return false
	}
	if d.opts.Exempt != nil && d.opts.Exempt(c) {
		d.logger.Info("recurring rejected event exempted", "event_id", c.ID, "title", c.Title)
		return false
	}

	prior := &ix.cols.Rejected[i]
	if prior.LastSeen.Before(now) {
		prior.LastSeen = now
	}
	stats.AutoRejected++
	stats.AutoRejectedIDs = append(stats.AutoRejectedIDs, prior.ID)
	d.logger.Info("auto-rejected recurring event", "event_id", prior.ID, "title", c.Title, "source", c.Source.Name)
	return true
}

// nearMatch finds the pending or published record describing the same
// event. When several qualify, the closest start wins.
func (d *Deduplicator) nearMatch(ix *index, c models.Event, stats *MergeStats) (slot, bool) {
	var matches []slot
	for _, status := range []models.EventStatus{models.EventStatusPending, models.EventStatusPublished} {
		for i := range *ix.cols.Of(status) {
			s := slot{status: status, index: i}
			if d.isNear(*ix.get(s), c) {
				matches = append(matches, s)
			}
		}
	}
	if len(matches) == 0 {
		return slot{}, false
	}

	slices.SortStableFunc(matches, func(a, b slot) int {
		ea, eb := ix.get(a), ix.get(b)
		return cmp.Or(
			cmp.Compare(absDuration(ea.Start.Sub(c.Start)), absDuration(eb.Start.Sub(c.Start))),
			ea.FirstSeen.Compare(eb.FirstSeen),
			cmp.Compare(ea.ID, eb.ID),
		)
	})
	if len(matches) > 1 {
		stats.Ambiguous++
		d.logger.Warn("ambiguous near match",
			"title", c.Title,
			"candidates", len(matches),
			"chosen", ix.get(matches[0]).ID,
		)
	}
	return matches[0], true
}

func (d *Deduplicator) isNear(existing, c models.Event) bool {
	if absDuration(existing.Start.Sub(c.Start)) > d.opts.DateTolerance {
		return false
	}
	if TitleKey(existing.Title) != TitleKey(c.Title) && titleSimilarity(existing.Title, c.Title) < d.opts.TitleSimilarity {
		return false
	}
	if existing.Location.HasCoordinates() && c.Location.HasCoordinates() {
		dist := distanceKM(*existing.Location.Lat, *existing.Location.Lon, *c.Location.Lat, *c.Location.Lon)
		if dist > d.opts.DistanceKM {
			return false
		}
	}
	return true
}

// mergeInto folds src into the record at s. The record keeps its ID and
// title; first_seen stays the earliest and last_seen the latest sighting.
func (d *Deduplicator) mergeInto(ix *index, s slot, src models.Event, now time.Time) {
	dst := ix.get(s)

	if src.FirstSeen.Before(dst.FirstSeen) && !src.FirstSeen.IsZero() {
		dst.FirstSeen = src.FirstSeen
	}
	for _, seen := range []time.Time{src.LastSeen, now} {
		if seen.After(dst.LastSeen) {
			dst.LastSeen = seen
		}
	}

	if src.Description != "" {
		dst.Description = src.Description
	}
	if src.End != nil && !src.End.Before(dst.Start) {
		dst.End = src.End
	}
	if src.ImageURL != "" {
		dst.ImageURL = src.ImageURL
	}
	if dst.Location.Name == "" {
		dst.Location.Name = src.Location.Name
	}
	if !dst.Location.HasCoordinates() && src.Location.HasCoordinates() {
		dst.Location.Lat, dst.Location.Lon = src.Location.Lat, src.Location.Lon
	}
	if dst.Category == models.CategoryOther && src.Category != models.CategoryOther {
		dst.Category = src.Category
	}

	// A date-only start is refined by a same-day sighting with a clock time.
	if d.isMidnight(dst.Start) && !d.isMidnight(src.Start) && d.sameLocalDay(dst.Start, src.Start) &&
		(dst.End == nil || !dst.End.Before(src.Start)) {
		dst.Start = src.Start
		dst.Fingerprint = Fingerprint(*dst)
		ix.byFingerprint[dst.Fingerprint] = s
	}

	if src.Source.Name != "" && src.Source != dst.Source && !slices.Contains(dst.AltSources, src.Source) {
		dst.AltSources = append(dst.AltSources, src.Source)
	}
}

func (d *Deduplicator) isMidnight(t time.Time) bool {
	l := t.In(d.opts.Location)
	return l.Hour() == 0 && l.Minute() == 0
}

func (d *Deduplicator) sameLocalDay(a, b time.Time) bool {
	return a.In(d.opts.Location).Format("2006-01-02") == b.In(d.opts.Location).Format("2006-01-02")
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
