package models

import (
	"regexp"
	"strings"
)

// Field is one labelled value from a lead, company or contact card
type Field struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Value string `json:"value"`
}

var slugPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// Key identifies the field: its id when present, else a slug of its label
func (f Field) Key() string {
	if f.ID != "" {
		return f.ID
	}
	return strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(f.Name), "_"), "_")
}

// LeadRecord is everything extracted from one lead card
type LeadRecord struct {
	IdentityMap   *IdentityMap `json:"ids,omitempty"`
	MainFields    []Field      `json:"fields,omitempty"`
	CompanyFields []Field      `json:"company,omitempty"`
	ContactFields [][]Field    `json:"contacts,omitempty"`
	Messages      []Message    `json:"messages,omitempty"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// ChannelList is the set of compose channels a lead card offers
type ChannelList struct {
	Available []string `json:"availableSources"`
	Chat      []string `json:"chat"` // External chat contact ids, when the chat channel is offered
}

// Compose channels known to the CRM
const (
	ChannelChat  = "chat"
	ChannelEmail = "email"
	ChannelNote  = "note"
)

// SendRequest asks for a message to be posted on a lead
type SendRequest struct {
	LeadID    string `json:"leadId" validate:"required"`
	Text      string `json:"message" validate:"required"`
	Channel   string `json:"messageType" validate:"required"`
	ContactID string `json:"chatId,omitempty"`
	Thread    string `json:"thread,omitempty"` // Subject line for email
}

// SendOutcome is the result of a send. When Sent is false Record carries only the identity map.
type SendOutcome struct {
	Sent   bool       `json:"sent"`
	Reason string     `json:"reason,omitempty"`
	Record LeadRecord `json:"record"`
}
