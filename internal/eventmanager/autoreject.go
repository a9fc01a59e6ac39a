package eventmanager

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// Auto-reject rule names, also used as the recorded reject reason prefix.
const (
	RuleRecurring = "recurring"
	RuleKeyword   = "keyword"
	RuleStale     = "stale"
)

// AutoRejectSummary counts pending events rejected per rule.
type AutoRejectSummary struct {
	Disabled bool           `json:"disabled,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
	IDs      []string       `json:"ids,omitempty"`
	Exempted int            `json:"exempted,omitempty"`
}

// Total returns the number of rejected events.
func (s AutoRejectSummary) Total() int {
	return len(s.IDs)
}

// AutoReject applies the auto-reject rules to the pending collection and
// persists the result.
func (m *Manager) AutoReject(ctx context.Context, now time.Time) (AutoRejectSummary, error) {
	cols, err := m.store.Load(ctx)
	if err != nil {
		return AutoRejectSummary{}, fmt.Errorf("failed to load collections: %w", err)
	}

	summary := m.applyAutoReject(&cols, now)
	if summary.Total() == 0 {
		return summary, nil
	}
	if err := m.store.Save(ctx, cols); err != nil {
		return summary, fmt.Errorf("failed to save collections: %w", err)
	}
	return summary, nil
}

// applyAutoReject rejects pending events that repeat a rejected fingerprint,
// contain a reject keyword, or are already over. Exempt events are kept.
func (m *Manager) applyAutoReject(cols *models.Collections, now time.Time) AutoRejectSummary {
	if !m.config.AutoRejectEnabled {
		return AutoRejectSummary{Disabled: true}
	}

	summary := AutoRejectSummary{ByRule: make(map[string]int)}

	rejected := make(map[string]bool, len(cols.Rejected))
	for _, e := range cols.Rejected {
		rejected[e.Fingerprint] = true
	}

	type verdict struct {
		id, rule, reason string
	}
	var verdicts []verdict
	for _, e := range cols.Pending {
		rule, reason := m.ruleFor(e, rejected, now)
		if rule == "" {
			continue
		}
		if m.config.Exempt.Match(e) {
			summary.Exempted++
			m.logger.Info("auto-reject exempted", "event_id", e.ID, "title", e.Title, "rule", rule)
			continue
		}
		verdicts = append(verdicts, verdict{id: e.ID, rule: rule, reason: reason})
	}

	for _, v := range verdicts {
		moved, ok := cols.Move(v.id, models.EventStatusPending, models.EventStatusRejected)
		if !ok {
			continue
		}
		moved.RejectReason = v.reason
		summary.ByRule[v.rule]++
		summary.IDs = append(summary.IDs, v.id)
		m.logger.Info("auto-rejected event", "event_id", v.id, "title", moved.Title, "rule", v.rule)
	}
	return summary
}

func (m *Manager) ruleFor(e models.Event, rejected map[string]bool, now time.Time) (string, string) {
	if rejected[e.Fingerprint] {
		return RuleRecurring, "auto: previously rejected"
	}

	text := strings.ToLower(e.Title + "\n" + e.Description)
	for _, kw := range m.config.RejectKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" && strings.Contains(text, kw) {
			return RuleKeyword, "auto: keyword " + kw
		}
	}

	if m.config.StaleAfter > 0 {
		last := e.Start
		if e.End != nil {
			last = *e.End
		}
		if now.Sub(last) > m.config.StaleAfter {
			return RuleStale, "auto: event is over"
		}
	}
	return "", ""
}
