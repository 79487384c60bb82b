package models

// Report is posted to the result endpoint once per terminal task outcome
type Report struct {
	LeadID    string   `json:"leadId"`
	TaskID    string   `json:"taskId"`
	Task      TaskKind `json:"task"`
	Channel   string   `json:"channel,omitempty"`
	ContactID string   `json:"contactId,omitempty"`
	Result    any      `json:"result,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Challenge describes a login challenge widget
type Challenge struct {
	SiteKey string
	PageURL string
}
