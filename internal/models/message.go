package models

// MessageKind discriminates feed items
type MessageKind string

const (
	MessageKindPlain  MessageKind = "plain"
	MessageKindSMS    MessageKind = "sms"
	MessageKindNote   MessageKind = "note"
	MessageKindMail   MessageKind = "mail"
	MessageKindTask   MessageKind = "task"
	MessageKindCall   MessageKind = "call"
	MessageKindSystem MessageKind = "system"
)

// Author identifies who produced a feed item.
// ID is the CRM user id, ContactID the chat contact id.
type Author struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	ContactID string `json:"contactId,omitempty"`
}

// Attachment is a file attached to a feed item
type Attachment struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url"`
}

// LinkedContact is the contact entity a feed item refers to
type LinkedContact struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Content is the body of a typed feed item
type Content struct {
	Text   string `json:"text"`
	Result string `json:"result,omitempty"`
	URL    string `json:"url,omitempty"`
}

type SMSPayload struct {
	Content Content        `json:"content"`
	Contact *LinkedContact `json:"contact,omitempty"`
}

type NotePayload struct {
	Text string `json:"text"`
}

type MailPayload struct {
	From    string         `json:"from"`
	To      string         `json:"to"`
	Content Content        `json:"content"`
	Contact *LinkedContact `json:"contact,omitempty"`
}

type TaskPayload struct {
	From      string         `json:"from"`
	To        string         `json:"to"`
	Content   Content        `json:"content"`
	Contact   *LinkedContact `json:"contact,omitempty"`
	Completed bool           `json:"completed"`
}

type CallPayload struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Duration string         `json:"duration,omitempty"`
	Status   string         `json:"status"`
	Content  Content        `json:"content"`
	Contact  *LinkedContact `json:"contact,omitempty"`
}

type SystemPayload struct {
	Content Content        `json:"content"`
	Contact *LinkedContact `json:"contact,omitempty"`
}

// MessageHeader carries the fields shared by every feed item
type MessageHeader struct {
	ID      string      `json:"id"`
	Date    string      `json:"date,omitempty"`    // As rendered by the CRM
	DateISO *int64      `json:"dateIso,omitempty"` // Unix seconds, nil when the date could not be parsed
	Author  *Author     `json:"author,omitempty"`
	Text    string      `json:"text"`
	Attach  *Attachment `json:"attach,omitempty"`
}

// Message is one feed item. Exactly one payload is set, matching Kind,
// except for plain messages which carry none. Build with the New* constructors.
type Message struct {
	MessageHeader
	Kind MessageKind `json:"kind"`

	SMS    *SMSPayload    `json:"sms,omitempty"`
	Note   *NotePayload   `json:"note,omitempty"`
	Mail   *MailPayload   `json:"mail,omitempty"`
	Task   *TaskPayload   `json:"task,omitempty"`
	Call   *CallPayload   `json:"call,omitempty"`
	System *SystemPayload `json:"system,omitempty"`
}

func NewPlainMessage(h MessageHeader) Message {
	return Message{MessageHeader: h, Kind: MessageKindPlain}
}

func NewSMSMessage(h MessageHeader, p SMSPayload) Message {
	return Message{MessageHeader: h, Kind: MessageKindSMS, SMS: &p}
}

func NewNoteMessage(h MessageHeader, p NotePayload) Message {
	return Message{MessageHeader: h, Kind: MessageKindNote, Note: &p}
}

func NewMailMessage(h MessageHeader, p MailPayload) Message {
	return Message{MessageHeader: h, Kind: MessageKindMail, Mail: &p}
}

func NewTaskMessage(h MessageHeader, p TaskPayload) Message {
	return Message{MessageHeader: h, Kind: MessageKindTask, Task: &p}
}

func NewCallMessage(h MessageHeader, p CallPayload) Message {
	return Message{MessageHeader: h, Kind: MessageKindCall, Call: &p}
}

func NewSystemMessage(h MessageHeader, p SystemPayload) Message {
	return Message{MessageHeader: h, Kind: MessageKindSystem, System: &p}
}

// Payload returns the kind-specific payload, nil for plain messages
func (m Message) Payload() any {
	switch {
	case m.Kind == MessageKindSMS && m.SMS != nil:
		return m.SMS
	case m.Kind == MessageKindNote && m.Note != nil:
		return m.Note
	case m.Kind == MessageKindMail && m.Mail != nil:
		return m.Mail
	case m.Kind == MessageKindTask && m.Task != nil:
		return m.Task
	case m.Kind == MessageKindCall && m.Call != nil:
		return m.Call
	case m.Kind == MessageKindSystem && m.System != nil:
		return m.System
	}
	return nil
}

// Valid reports whether exactly the payload matching Kind is set
func (m Message) Valid() bool {
	set := 0
	for _, present := range []bool{m.SMS != nil, m.Note != nil, m.Mail != nil, m.Task != nil, m.Call != nil, m.System != nil} {
		if present {
			set++
		}
	}
	if m.Kind == MessageKindPlain {
		return set == 0
	}
	return set == 1 && m.Payload() != nil
}
