package eventmanager

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/STRATINT/eventcurator/internal/models"
)

// ItemResult is the outcome for one selector or one matched event.
type ItemResult struct {
	Selector string `json:"selector"`
	ID       string `json:"id,omitempty"`
	Title    string `json:"title,omitempty"`
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// BatchResult reports a bulk publish or reject. The batch always runs to
// completion; failures are per item.
type BatchResult struct {
	Action    string       `json:"action"`
	Items     []ItemResult `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

func (b *BatchResult) add(item ItemResult) {
	if item.Err != nil {
		item.Error = item.Err.Error()
		b.Failed++
	} else {
		b.Succeeded++
	}
	b.Items = append(b.Items, item)
}

// Publish moves pending events matching the selectors to published.
func (m *Manager) Publish(ctx context.Context, selectors ...string) (BatchResult, error) {
	return m.transition(ctx, "publish", models.EventStatusPublished, "", selectors)
}

// Reject moves pending events matching the selectors to rejected, recording
// reason on each.
func (m *Manager) Reject(ctx context.Context, reason string, selectors ...string) (BatchResult, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "rejected by editor"
	}
	return m.transition(ctx, "reject", models.EventStatusRejected, reason, selectors)
}

// transition applies one editorial action to every selector. Only load and
// save failures are returned as errors.
func (m *Manager) transition(ctx context.Context, action string, to models.EventStatus, reason string, selectors []string) (BatchResult, error) {
	result := BatchResult{Action: action}

	cols, err := m.store.Load(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load collections: %w", err)
	}

	done := make(map[string]bool)
	for _, selector := range selectors {
		ids, err := resolve(&cols, selector)
		if err != nil {
			result.add(ItemResult{Selector: selector, Err: err})
			continue
		}

		for _, id := range ids {
			if done[id] {
				continue
			}
			done[id] = true
			result.add(m.apply(&cols, selector, id, to, reason))
		}
	}

	if result.Succeeded == 0 {
		return result, nil
	}
	if err := m.store.Save(ctx, cols); err != nil {
		return result, fmt.Errorf("failed to save collections: %w", err)
	}

	m.logger.Info("editorial batch completed",
		"action", action,
		"selectors", len(selectors),
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
	return result, nil
}

func (m *Manager) apply(cols *models.Collections, selector, id string, to models.EventStatus, reason string) ItemResult {
	item := ItemResult{Selector: selector, ID: id}

	e, status, ok := cols.Find(id)
	if !ok {
		item.Err = fmt.Errorf("%w: %s", ErrEventNotFound, id)
		return item
	}
	item.Title = e.Title
	if status != models.EventStatusPending {
		item.Err = fmt.Errorf("%w: %s is %s, cannot become %s", ErrInvalidTransition, id, status, to)
		return item
	}

	moved, _ := cols.Move(id, status, to)
	moved.RejectReason = reason
	m.logger.Info("event status changed", "event_id", id, "from", status, "to", to, "reason", reason)
	return item
}

// resolve turns a selector into event IDs. A plain selector names one event
// by ID or, when no ID matches, every pending event with that exact title. A wildcard selector (*, ? or [...])
// is matched case-insensitively against ID and title of pending events.
func resolve(cols *models.Collections, selector string) ([]string, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return nil, fmt.Errorf("%w: empty selector", ErrNoMatch)
	}

	if !isPattern(selector) {
		if _, _, ok := cols.Find(selector); ok {
			return []string{selector}, nil
		}
		var ids []string
		for _, e := range cols.Pending {
			if strings.EqualFold(e.Title, selector) {
				ids = append(ids, e.ID)
			}
		}
		if len(ids) > 0 {
			return ids, nil
		}
		// No pending match; a decided event with that title reports the
		// invalid transition.
		for _, status := range []models.EventStatus{models.EventStatusPublished, models.EventStatusRejected} {
			for _, e := range *cols.Of(status) {
				if strings.EqualFold(e.Title, selector) {
					return []string{e.ID}, nil
				}
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrEventNotFound, selector)
	}

	pattern := strings.ToLower(selector)
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", selector, err)
	}

	var ids []string
	for _, e := range cols.Pending {
		if globMatch(pattern, e.ID) || globMatch(pattern, e.Title) {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, selector)
	}
	return ids, nil
}

func isPattern(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// globMatch matches a lowercased pattern against s. Titles may contain '/',
// which path.Match never lets '*' cross, so it is neutralised first.
func globMatch(pattern, s string) bool {
	ok, _ := path.Match(pattern, strings.ReplaceAll(strings.ToLower(s), "/", " "))
	return ok
}

// Exemption matches events that auto-reject rules must leave alone.
type Exemption struct {
	patterns []string
}

// NewExemption builds an exemption from glob patterns matched
// case-insensitively against ID, title and source name.
func NewExemption(patterns []string) Exemption {
	e := Exemption{}
	for _, p := range patterns {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			e.patterns = append(e.patterns, p)
		}
	}
	return e
}

// Match reports whether ev is exempt.
func (x Exemption) Match(ev models.Event) bool {
	for _, p := range x.patterns {
		if globMatch(p, ev.ID) || globMatch(p, ev.Title) || globMatch(p, ev.Source.Name) {
			return true
		}
	}
	return false
}
