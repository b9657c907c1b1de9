package domain

// Status classifies a client. The set is reference data owned upstream.
type Status struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// Statuses is the reference set as fetched.
type Statuses []Status

// Name returns the display name for id, or "" when unknown.
func (s Statuses) Name(id ID) string {
	for _, st := range s {
		if st.ID == id {
			return st.Name
		}
	}
	return ""
}

// statusPalette holds the theme colours cycled across status ids.
var statusPalette = []string{
	"#6366f1", "#22c55e", "#f59e0b", "#ef4444",
	"#06b6d4", "#a855f7", "#ec4899", "#64748b",
}

// StatusColor returns a stable theme colour for a status id.
// Unclassified clients get the neutral slate.
func StatusColor(id ID) string {
	if id <= 0 {
		return "#94a3b8"
	}
	return statusPalette[int(id)%len(statusPalette)]
}
