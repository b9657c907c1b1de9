package inbox

import (
	"sort"
	"strings"

	"github.com/ashureev/castle-console/internal/domain"
)

// SortKey selects the roster ordering of a filtered view.
type SortKey string

const (
	SortRecent     SortKey = "recent"
	SortName       SortKey = "name"
	SortCaseType   SortKey = "case_type"
	SortIC         SortKey = "ic"
	SortApptSetter SortKey = "appt_setter"
)

// SortKeys lists the keys in cycling order.
var SortKeys = []SortKey{SortRecent, SortName, SortCaseType, SortIC, SortApptSetter}

// ParseSortKey maps a query value onto a key. Unknown values yield
// SortRecent and false.
func ParseSortKey(s string) (SortKey, bool) {
	for _, k := range SortKeys {
		if string(k) == s {
			return k, true
		}
	}
	return SortRecent, false
}

// Next returns the key after k in cycling order.
func (k SortKey) Next() SortKey {
	for i, key := range SortKeys {
		if key == k {
			return SortKeys[(i+1)%len(SortKeys)]
		}
	}
	return SortRecent
}

// Filter is a roster predicate. Zero-valued fields do not constrain.
type Filter struct {
	Query      string    `json:"q,omitempty"`
	StatusID   domain.ID `json:"status_id,omitempty"`
	Office     string    `json:"office,omitempty"`
	CaseType   string    `json:"case_type,omitempty"`
	Language   string    `json:"language,omitempty"`
	IC         string    `json:"ic,omitempty"`
	ApptSetter string    `json:"appt_setter,omitempty"`
	UnreadOnly bool      `json:"unread,omitempty"`
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f == Filter{}
}

// Matches reports whether c passes the filter. Status names are looked
// up in statuses for the free-text query.
func (f Filter) Matches(c *domain.Client, statuses domain.Statuses) bool {
	if q := strings.TrimSpace(f.Query); q != "" && !matchesQuery(c, q, statuses) {
		return false
	}
	if f.StatusID != 0 && c.StatusID != f.StatusID {
		return false
	}
	if f.Office != "" && c.Office != f.Office {
		return false
	}
	if f.CaseType != "" && c.CaseType != f.CaseType {
		return false
	}
	if f.Language != "" && c.Language != f.Language {
		return false
	}
	if f.IC != "" && c.IC != f.IC {
		return false
	}
	if f.ApptSetter != "" && c.ApptSetter != f.ApptSetter {
		return false
	}
	if f.UnreadOnly && c.UnreadCount == 0 {
		return false
	}
	return true
}

func matchesQuery(c *domain.Client, q string, statuses domain.Statuses) bool {
	needle := strings.ToLower(q)
	for _, field := range []string{
		c.Name,
		c.Email,
		c.Notes,
		statuses.Name(c.StatusID),
		c.Office,
		c.CaseType,
		c.Language,
		c.IC,
		c.ApptSetter,
	} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	digits := domain.DigitsOnly(q)
	return digits != "" && strings.Contains(domain.DigitsOnly(c.Phone), digits)
}

// Sort orders list in place by key. Text keys compare case-insensitively
// with ties broken by id.
func Sort(list []domain.Client, key SortKey) {
	if key == SortRecent {
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].RecencyTime().After(list[j].RecencyTime())
		})
		return
	}
	field := sortField(key)
	sort.SliceStable(list, func(i, j int) bool {
		a, b := strings.ToLower(field(&list[i])), strings.ToLower(field(&list[j]))
		if a != b {
			return a < b
		}
		return list[i].ID < list[j].ID
	})
}

func sortField(key SortKey) func(*domain.Client) string {
	switch key {
	case SortCaseType:
		return func(c *domain.Client) string { return c.CaseType }
	case SortIC:
		return func(c *domain.Client) string { return c.IC }
	case SortApptSetter:
		return func(c *domain.Client) string { return c.ApptSetter }
	default:
		return func(c *domain.Client) string { return c.Name }
	}
}

// View returns a filtered copy of list. With SortRecent and no filter
// the roster order itself is kept, since it already reflects arrival.
func View(list []domain.Client, statuses domain.Statuses, f Filter, key SortKey) []domain.Client {
	out := make([]domain.Client, 0, len(list))
	for i := range list {
		if f.Matches(&list[i], statuses) {
			out = append(out, list[i])
		}
	}
	if key != SortRecent || !f.IsZero() {
		Sort(out, key)
	}
	return out
}

// Facets are the option lists for the exact-match filters.
type Facets struct {
	Statuses    domain.Statuses `json:"statuses"`
	Offices     []string        `json:"offices"`
	CaseTypes   []string        `json:"case_types"`
	Languages   []string        `json:"languages"`
	ICs         []string        `json:"ics"`
	ApptSetters []string        `json:"appt_setters"`
}

// BuildFacets collects the distinct non-empty values present in list.
func BuildFacets(list []domain.Client, statuses domain.Statuses) Facets {
	pick := func(get func(*domain.Client) string) []string {
		seen := make(map[string]bool)
		out := []string{}
		for i := range list {
			v := get(&list[i])
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			out = append(out, v)
		}
		sort.Strings(out)
		return out
	}
	if statuses == nil {
		statuses = domain.Statuses{}
	}
	return Facets{
		Statuses:    statuses,
		Offices:     pick(func(c *domain.Client) string { return c.Office }),
		CaseTypes:   pick(func(c *domain.Client) string { return c.CaseType }),
		Languages:   pick(func(c *domain.Client) string { return c.Language }),
		ICs:         pick(func(c *domain.Client) string { return c.IC }),
		ApptSetters: pick(func(c *domain.Client) string { return c.ApptSetter }),
	}
}
