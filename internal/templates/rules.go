// Package templates groups follow-up template steps into rules and
// manages step mutations against the upstream.
package templates

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ashureev/castle-console/internal/domain"
)

// AnyLabel is shown for a blank classification field.
const AnyLabel = "Any"

// Rule is a set of steps sharing the same classification fields.
type Rule struct {
	Key             string            `json:"key"`
	Status          string            `json:"status"`
	Language        string            `json:"language"`
	CaseType        string            `json:"case_type"`
	Office          string            `json:"office"`
	AppointmentType string            `json:"appointment_type"`
	Steps           []domain.Template `json:"steps"`
	ActiveCount     int               `json:"active_count"`
}

// Fields returns the classification fields in key order.
func (r Rule) Fields() []string {
	return []string{r.Status, r.Language, r.CaseType, r.Office, r.AppointmentType}
}

// Title joins the display labels, blank fields shown as "Any".
func (r Rule) Title() string {
	labels := make([]string, 0, 5)
	for _, f := range r.Fields() {
		labels = append(labels, FieldLabel(f))
	}
	return strings.Join(labels, " · ")
}

// FieldLabel returns v trimmed, or "Any" when blank.
func FieldLabel(v string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return AnyLabel
}

func classification(t *domain.Template) []string {
	return []string{
		strings.TrimSpace(t.Status),
		strings.TrimSpace(t.Language),
		strings.TrimSpace(t.CaseType),
		strings.TrimSpace(t.Office),
		strings.TrimSpace(t.AppointmentType),
	}
}

// GroupKey is the rule bucket of a step.
func GroupKey(t *domain.Template) string {
	return strings.Join(classification(t), "||")
}

// Group buckets steps into rules. Steps within a rule are ordered by
// delay ascending, ties by id descending; rules are ordered by their
// lowercased " | "-joined fields.
func Group(list []domain.Template) []Rule {
	byKey := make(map[string]*Rule)
	var keys []string
	for i := range list {
		t := list[i]
		k := GroupKey(&t)
		r, ok := byKey[k]
		if !ok {
			f := classification(&t)
			r = &Rule{Key: k, Status: f[0], Language: f[1], CaseType: f[2], Office: f[3], AppointmentType: f[4]}
			byKey[k] = r
			keys = append(keys, k)
		}
		r.Steps = append(r.Steps, t)
		if t.Active {
			r.ActiveCount++
		}
	}

	rules := make([]Rule, 0, len(keys))
	for _, k := range keys {
		r := byKey[k]
		sort.SliceStable(r.Steps, func(i, j int) bool {
			a, b := r.Steps[i], r.Steps[j]
			if a.DelayHours != b.DelayHours {
				return a.DelayHours < b.DelayHours
			}
			return a.ID > b.ID
		})
		rules = append(rules, *r)
	}

	sort.SliceStable(rules, func(i, j int) bool {
		return sortName(rules[i]) < sortName(rules[j])
	})
	return rules
}

func sortName(r Rule) string {
	return strings.ToLower(strings.Join(r.Fields(), " | "))
}

// Filter narrows the steps considered before grouping.
type Filter struct {
	Query      string
	ActiveOnly bool
}

// Apply returns the steps passing f. The query matches the
// classification fields, body, delay and id, case-insensitively.
func (f Filter) Apply(list []domain.Template) []domain.Template {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]domain.Template, 0, len(list))
	for _, t := range list {
		if f.ActiveOnly && !bool(t.Active) {
			continue
		}
		if query != "" {
			hay := strings.ToLower(strings.Join([]string{
				t.Status, t.Language, t.CaseType, t.Office, t.AppointmentType,
				t.Body, strconv.Itoa(int(t.DelayHours)), t.ID.String(),
			}, " "))
			if !strings.Contains(hay, query) {
				continue
			}
		}
		out = append(out, t)
	}
	return out
}

// FormatDelay renders a step delay.
func FormatDelay(h domain.Hours) string {
	switch {
	case h <= 0:
		return "Immediate"
	case h%24 == 0:
		if days := h / 24; days != 1 {
			return fmt.Sprintf("After %d days", days)
		}
		return "After 1 day"
	default:
		return fmt.Sprintf("After %d hours", h)
	}
}

// Options are the distinct non-blank values of each classification field.
type Options struct {
	Statuses  []string `json:"statuses"`
	Languages []string `json:"languages"`
	CaseTypes []string `json:"case_types"`
	Offices   []string `json:"offices"`
	ApptTypes []string `json:"appointment_types"`
}

// Distinct collects the option lists.
func Distinct(list []domain.Template) Options {
	pick := func(idx int) []string {
		seen := make(map[string]bool)
		out := []string{}
		for i := range list {
			v := classification(&list[i])[idx]
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
		sort.Strings(out)
		return out
	}
	return Options{
		Statuses:  pick(0),
		Languages: pick(1),
		CaseTypes: pick(2),
		Offices:   pick(3),
		ApptTypes: pick(4),
	}
}
