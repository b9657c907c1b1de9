// Package domain contains core domain types for the messaging console.
package domain

import (
	"strings"
	"time"
)

// Client is a roster entry as served by the upstream API, plus the
// transient inbox fields the console tracks locally.
type Client struct {
	ID               ID     `json:"id"`
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email,omitempty"`
	Office           string `json:"office,omitempty"`
	CaseType         string `json:"case_type,omitempty"`
	CaseSubtype      string `json:"case_subtype,omitempty"`
	Language         string `json:"language,omitempty"`
	StatusID         ID     `json:"status_id,omitempty"`
	AppointmentDate  string `json:"appointment_date,omitempty"`
	AppointmentTime  string `json:"appointment_time,omitempty"`
	ScheduledDate    string `json:"AppointmentScheduledDate,omitempty"`
	ApptSetter       string `json:"appt_setter,omitempty"`
	IC               string `json:"ic,omitempty"`
	AttorneyAssigned string `json:"attorney_assigned,omitempty"`
	Notes            string `json:"notes,omitempty"`
	ServerLastMsgAt  string `json:"last_message_at,omitempty"`

	// Transient fields. Never sent upstream.
	UnreadCount     int        `json:"unreadCount"`
	LastMessageAt   *time.Time `json:"lastMessageAt,omitempty"`
	LastMessageText string     `json:"lastMessageText,omitempty"`
}

// Appointment returns the appointment date/time, preferring the split
// fields and falling back to the legacy combined one.
func (c *Client) Appointment() string {
	if c.AppointmentDate != "" {
		return strings.TrimSpace(c.AppointmentDate + " " + c.AppointmentTime)
	}
	return c.ScheduledDate
}

// RecencyTime returns the time used for most-recent-first ordering:
// the locally observed last message, else the server's hint, else zero.
func (c *Client) RecencyTime() time.Time {
	if c.LastMessageAt != nil {
		return *c.LastMessageAt
	}
	if t, ok := ParseTimestamp(c.ServerLastMsgAt); ok {
		return t
	}
	return time.Time{}
}

// CarryTransient copies the locally tracked fields from prev.
func (c *Client) CarryTransient(prev *Client) {
	c.UnreadCount = prev.UnreadCount
	c.LastMessageText = prev.LastMessageText
	if prev.LastMessageAt != nil {
		t := *prev.LastMessageAt
		c.LastMessageAt = &t
	} else {
		c.LastMessageAt = nil
	}
}

// ResetTransient zeroes the locally tracked fields.
func (c *Client) ResetTransient() {
	c.UnreadCount = 0
	c.LastMessageAt = nil
	c.LastMessageText = ""
}

// ClientInput is the writable subset of a client used for create and
// update calls. Name, phone, office and case type are required.
type ClientInput struct {
	Name             string `json:"name" validate:"required"`
	Phone            string `json:"phone" validate:"required"`
	Email            string `json:"email,omitempty" validate:"omitempty,email"`
	Notes            string `json:"notes,omitempty"`
	Language         string `json:"language,omitempty"`
	Office           string `json:"office" validate:"required"`
	CaseType         string `json:"case_type" validate:"required"`
	CaseSubtype      string `json:"case_subtype,omitempty"`
	StatusID         ID     `json:"status_id,omitempty"`
	ScheduledDate    string `json:"AppointmentScheduledDate,omitempty"`
	ApptSetter       string `json:"appt_setter,omitempty"`
	IC               string `json:"ic,omitempty"`
	AttorneyAssigned string `json:"attorney_assigned,omitempty"`
}

// Normalize trims every free-text field and defaults the language.
func (in *ClientInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)
	in.Notes = strings.TrimSpace(in.Notes)
	in.Language = strings.TrimSpace(in.Language)
	in.Office = strings.TrimSpace(in.Office)
	in.CaseType = strings.TrimSpace(in.CaseType)
	in.CaseSubtype = strings.TrimSpace(in.CaseSubtype)
	if in.Language == "" {
		in.Language = "English"
	}
}
