package domain

import "strings"

// Template is one delay-based step of a follow-up rule. Blank
// classification fields act as wildcards.
type Template struct {
	ID               ID     `json:"id,omitempty"`
	Status           string `json:"status"`
	Language         string `json:"language"`
	CaseType         string `json:"case_type"`
	Office           string `json:"office"`
	AppointmentType  string `json:"appointment_type"`
	AttorneyAssigned string `json:"attorney_assigned,omitempty"`
	DelayHours       Hours  `json:"delay_hours"`
	Body             string `json:"template"`
	Active           Flag   `json:"active"`
}

// Normalize trims the classification fields and body.
func (t *Template) Normalize() {
	t.Status = strings.TrimSpace(t.Status)
	t.Language = strings.TrimSpace(t.Language)
	t.CaseType = strings.TrimSpace(t.CaseType)
	t.Office = strings.TrimSpace(t.Office)
	t.AppointmentType = strings.TrimSpace(t.AppointmentType)
	t.AttorneyAssigned = strings.TrimSpace(t.AttorneyAssigned)
	t.Body = strings.TrimSpace(t.Body)
	if t.DelayHours < 0 {
		t.DelayHours = 0
	}
}

// Hours is a send delay in whole hours.
type Hours int

// UnmarshalJSON accepts numbers and numeric strings.
func (h *Hours) UnmarshalJSON(data []byte) error {
	n, err := decodeFlexInt(data)
	if err != nil {
		return err
	}
	*h = Hours(n)
	return nil
}
