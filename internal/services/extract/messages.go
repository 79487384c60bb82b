package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/models"
)

// Label preceding the callee in outgoing call headers
const recipientLabel = "кому:"

// MessageParser turns rendered feed items into typed messages
type MessageParser struct {
	sel     common.Selectors
	baseURL string
}

// NewMessageParser creates a parser. baseURL prefixes relative contact links.
func NewMessageParser(sel common.Selectors, baseURL string) *MessageParser {
	return &MessageParser{sel: sel, baseURL: strings.TrimRight(baseURL, "/")}
}

// Parse reads all feed items, or only the newest one when onlyLast is set
func (p *MessageParser) Parse(doc *goquery.Document, onlyLast bool) []models.Message {
	items := doc.Find(p.sel.Get(common.SelFeed))
	if onlyLast && items.Length() > 0 {
		items = items.Last()
	}

	messages := make([]models.Message, 0, items.Length())
	items.Each(func(_ int, item *goquery.Selection) {
		messages = append(messages, p.parseItem(item))
	})
	return messages
}

func (p *MessageParser) parseItem(item *goquery.Selection) models.Message {
	h := p.header(item)

	switch {
	case hasClass(item, p.sel.Get(common.SelFeedSystem)):
		return p.system(item, h)
	case hasClass(item, p.sel.Get(common.SelFeedSMS)):
		return p.sms(item, h)
	case hasClass(item, p.sel.Get(common.SelFeedNote)):
		return p.note(item, h)
	case hasClass(item, p.sel.Get(common.SelFeedMail)):
		return p.mail(item, h)
	case hasClass(item, p.sel.Get(common.SelFeedTask)):
		return p.task(item, h)
	case hasClass(item, p.sel.Get(common.SelFeedCall)):
		return p.call(item, h)
	}
	return models.NewPlainMessage(h)
}

func (p *MessageParser) header(item *goquery.Selection) models.MessageHeader {
	h := models.MessageHeader{
		ID: item.AttrOr(p.sel.Get(common.SelFeedIDAttr), ""),
	}
	h.Text, _ = text(item, p.sel.Get(common.SelMessageText))
	h.Date, _ = text(item, p.sel.Get(common.SelFeedDate))

	if author := item.Find(p.sel.Get(common.SelMessageAuthor)).First(); author.Length() > 0 {
		h.Author = &models.Author{
			Name: Normalize(author.AttrOr(p.sel.Get(common.SelMessageAuthorNameAttr), "")),
			ID:   author.AttrOr(p.sel.Get(common.SelMessageAuthorIDAttr), ""),
		}
	}

	if avatar := item.Find(p.sel.Get(common.SelMessageAvatar)).First(); avatar.Length() > 0 {
		contactID := avatar.AttrOr(p.sel.Get(common.SelMessageAvatarUserIDAttr), "")
		if h.Author != nil {
			h.Author.ContactID = contactID
		} else {
			h.Author = &models.Author{ID: contactID, ContactID: contactID}
		}
	}

	if attach := item.Find(p.sel.Get(common.SelMessageAttach)).First(); attach.Length() > 0 {
		if link := attach.Find("a").First(); link.Length() > 0 {
			h.Attach = &models.Attachment{
				ID:  attach.AttrOr(p.sel.Get(common.SelMessageAttachIDAttr), ""),
				URL: link.AttrOr("href", ""),
			}
		}
	}

	return h
}

func (p *MessageParser) linkedContact(item *goquery.Selection) *models.LinkedContact {
	link := item.Find(p.sel.Get(common.SelFeedContactLinked)).First().Find("a").First()
	if link.Length() == 0 {
		return nil
	}
	return &models.LinkedContact{
		Name: Normalize(link.Text()),
		URL:  p.absolute(link.AttrOr("href", "")),
	}
}

func (p *MessageParser) absolute(href string) string {
	if href == "" || strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return p.baseURL + href
}

func (p *MessageParser) system(item *goquery.Selection, h models.MessageHeader) models.Message {
	payload := models.SystemPayload{}

	changed := hasClass(item, p.sel.Get(common.SelFeedSystemFieldChanged)) ||
		hasClass(item, p.sel.Get(common.SelFeedSystemStatusChanged))
	if changed {
		for _, selector := range []string{p.sel.Get(common.SelFeedSystemFieldText), p.sel.Get(common.SelFeedSystemStatusText)} {
			if t, ok := text(item, selector); ok {
				payload.Content.Text = t
				h.Text = t
				break
			}
		}
		// Field and status changes made by the system carry an empty author
		if h.Author != nil && h.Author.ID == "" {
			h.Author = nil
		}
	}

	payload.Contact = p.linkedContact(item)
	if payload.Content.Text == "" {
		payload.Content.Text = h.Text
	}
	return models.NewSystemMessage(h, payload)
}

func (p *MessageParser) sms(item *goquery.Selection, h models.MessageHeader) models.Message {
	payload := models.SMSPayload{}
	if t, ok := text(item, p.sel.Get(common.SelFeedSMSText)); ok {
		payload.Content.Text = t
		h.Text = t
	}
	payload.Contact = p.linkedContact(item)
	return models.NewSMSMessage(h, payload)
}

func (p *MessageParser) note(item *goquery.Selection, h models.MessageHeader) models.Message {
	if t, ok := text(item, p.sel.Get(common.SelFeedNoteText)); ok {
		h.Text = t
	}
	return models.NewNoteMessage(h, models.NotePayload{Text: h.Text})
}

func (p *MessageParser) mail(item *goquery.Selection, h models.MessageHeader) models.Message {
	h.Author = nil
	payload := models.MailPayload{}

	if header := item.Find(p.sel.Get(common.SelFeedMailHeader)).First(); header.Length() > 0 {
		if parts := splitNBSP(innerHTML(header)); len(parts) > 0 {
			h.Date = fragmentText(parts[0])
		}

		authors := header.Find(p.sel.Get(common.SelMessageAuthor))
		if authors.Length() == 2 {
			payload.From = Normalize(authors.Eq(0).Text())
			payload.To = Normalize(authors.Eq(1).Text())
		}
	}

	payload.Contact = p.linkedContact(item)

	if link := item.Find(p.sel.Get(common.SelFeedMailContent)).First().Find("a").First(); link.Length() > 0 {
		payload.Content = models.Content{
			Text: Normalize(link.Text()),
			URL:  link.AttrOr("href", ""),
		}
	}
	if payload.Content.Text == "" {
		payload.Content.Text = h.Text
	}
	return models.NewMailMessage(h, payload)
}

func (p *MessageParser) task(item *goquery.Selection, h models.MessageHeader) models.Message {
	h.Author = nil
	payload := models.TaskPayload{}

	if header := item.Find(p.sel.Get(common.SelFeedTaskHeader)).First(); header.Length() > 0 {
		// "<from-label> <from> <to-label> <to>" or "<to-label> <to>" separated by NBSP
		parts := splitNBSP(innerHTML(header.Find(p.sel.Get(common.SelFeedTaskHeaderInner))))
		switch len(parts) {
		case 5:
			payload.From = fragmentText(parts[2])
			payload.To = fragmentText(parts[4])
		case 3:
			payload.To = fragmentText(parts[2])
		}

		if date := header.Find(p.sel.Get(common.SelFeedTaskDate)).First(); date.Length() > 0 {
			before, _, _ := strings.Cut(innerHTML(date), "<b")
			h.Date = fragmentText(before)
		}
	}

	payload.Contact = p.linkedContact(item)
	payload.Content.Text, _ = text(item, p.sel.Get(common.SelFeedTaskContent))
	payload.Content.Result, _ = text(item, p.sel.Get(common.SelFeedTaskResult))
	payload.Completed = item.Find(p.sel.Get(common.SelFeedTaskCompleted)).Length() > 0

	if payload.Content.Text == "" {
		payload.Content.Text = h.Text
	}
	return models.NewTaskMessage(h, payload)
}

func (p *MessageParser) call(item *goquery.Selection, h models.MessageHeader) models.Message {
	h.Author = nil
	payload := models.CallPayload{}

	if inner := item.Find(p.sel.Get(common.SelFeedCallInner)).First(); inner.Length() > 0 {
		parts := splitNBSP(innerHTML(inner))

		if d, ok := text(inner, p.sel.Get(common.SelFeedCallDate)); ok {
			h.Date = d
		}

		named, hasNamed := text(inner, p.sel.Get(common.SelMessageAuthor))

		if item.Find(p.sel.Get(common.SelFeedCallIncoming)).Length() > 0 {
			switch {
			case hasNamed:
				payload.To = named
			case len(parts) > 3:
				payload.To = strings.TrimSpace(strings.TrimPrefix(fragmentText(parts[3]), recipientLabel))
			}

			if dateText := inner.Find(p.sel.Get(common.SelFeedCallDateText)).First(); dateText.Length() > 0 {
				if segments := splitNBSP(innerHTML(dateText)); len(segments) == 3 {
					payload.From = fragmentText(segments[1])
				}
			}
		} else {
			switch {
			case hasNamed:
				payload.From = named
			case len(parts) > 1:
				if _, after, found := strings.Cut(parts[1], "</span>"); found {
					payload.From = fragmentText(after)
				}
			}

			if len(parts) == 4 {
				payload.To = strings.TrimSpace(strings.TrimPrefix(fragmentText(parts[3]), recipientLabel))
			}
		}
	}

	if content := item.Find(p.sel.Get(common.SelFeedCallContent)).First(); content.Length() > 0 {
		payload.Content.Text = fragmentText(splitNBSP(innerHTML(content))[0])
	}
	payload.Duration, _ = text(item, p.sel.Get(common.SelFeedCallDuration))

	if link := item.Find(p.sel.Get(common.SelFeedCallURL)).First(); link.Length() > 0 {
		payload.Content.URL = link.AttrOr("href", "")
	}

	payload.Contact = p.linkedContact(item)
	payload.Status, _ = text(item, p.sel.Get(common.SelFeedCallStatus))

	if payload.Content.Text == "" {
		payload.Content.Text = h.Text
	}
	return models.NewCallMessage(h, payload)
}
