package action

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/models"
	"github.com/ternarybob/leadharvest/internal/services/browser/browsertest"
)

const composeHTML = `<html><body><div class="feed-compose">
<div class="feed-compose-switcher">
  <div class="feed-compose-switcher__item" data-id="chat"></div>
  <div class="feed-compose-switcher__item" data-id="note"></div>
  <div class="feed-compose-switcher__item" data-id="email"></div>
</div>
<div class="feed-compose__talk-recipient"></div>
<div class="feed-compose__subject"><input></div>
<div class="feed-compose__message-wrapper"><div class="feed-compose__message"></div></div>
<button class="feed-note__button">Send</button>
</div></body></html>`

const pickerHTML = `<div class="users-select-suggest">
<div class="users-select-row__inner" data-id="c1" data-group="external"></div>
<div class="users-select-row__inner" data-id="c2" data-group="external"></div>
<div class="users-select-row__inner" data-id="u1" data-group="internal"></div>
</div>`

func newComposePage(html string) *browsertest.FakePage {
	page := browsertest.NewFakePage(html)
	page.OnClick(".feed-compose__talk-recipient", func(p *browsertest.FakePage) {
		p.Mutate(func(doc *goquery.Document) {
			doc.Find("body").AppendHtml(pickerHTML)
		})
	})
	return page
}

func newSender() *Sender {
	return NewSender(common.DefaultSelectors(), Config{WaitTimeout: 20 * time.Millisecond}, arbor.NewLogger())
}

func TestReadChannels_WithChatContacts(t *testing.T) {
	page := newComposePage(composeHTML)

	list, err := newSender().ReadChannels(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, []string{"chat", "note", "email"}, list.Available)
	assert.Equal(t, []string{"c1", "c2"}, list.Chat)
	assert.Equal(t, 1, page.ClickCount(`.feed-compose-switcher__item[data-id="chat"]`))
}

func TestReadChannels_NoChat(t *testing.T) {
	page := newComposePage(`<html><body><div class="feed-compose-switcher">
<div class="feed-compose-switcher__item" data-id="note"></div></div></body></html>`)

	list, err := newSender().ReadChannels(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, []string{"note"}, list.Available)
	assert.Empty(t, list.Chat)
	assert.Empty(t, page.Clicks)
}

func TestReadChannels_NoChannels(t *testing.T) {
	list, err := newSender().ReadChannels(context.Background(), newComposePage(`<html><body></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, list.Available)
	assert.NotNil(t, list.Chat)
}

func TestSend_Note(t *testing.T) {
	page := newComposePage(composeHTML)

	err := newSender().Send(context.Background(), page, models.SendRequest{LeadID: "1", Text: "Hello", Channel: "note"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Hello", page.TypedText(".feed-compose__message"))
	assert.Equal(t, []string{
		".feed-compose-switcher",
		`.feed-compose-switcher__item[data-id="note"]`,
		".feed-compose__message-wrapper",
		".feed-compose__message",
		".feed-note__button",
	}, page.Clicks)
}

func TestSend_InvalidChannel(t *testing.T) {
	page := newComposePage(composeHTML)

	err := newSender().Send(context.Background(), page, models.SendRequest{LeadID: "1", Text: "Hi", Channel: "fax"}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrActionPrecondition)
	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StepChannels, pe.Step)
	assert.Empty(t, page.Clicks)
}

func TestSend_NoChannels(t *testing.T) {
	err := newSender().Send(context.Background(), newComposePage(`<html><body></body></html>`),
		models.SendRequest{Text: "Hi", Channel: "note"}, nil)

	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StepChannels, pe.Step)
}

func TestSend_ChatToContact(t *testing.T) {
	page := newComposePage(composeHTML)

	err := newSender().Send(context.Background(), page, models.SendRequest{Text: "Hi", Channel: "chat", ContactID: "c2"}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, page.ClickCount(`.users-select-row__inner[data-id="c2"]`))
	assert.Equal(t, "Hi", page.TypedText(".feed-compose__message"))
}

func TestSend_ChatContactMissing(t *testing.T) {
	page := newComposePage(composeHTML)

	err := newSender().Send(context.Background(), page, models.SendRequest{Text: "Hi", Channel: "chat", ContactID: "nobody"}, nil)

	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StepChatContact, pe.Step)
	assert.Empty(t, page.TypedText(".feed-compose__message"))
}

func TestSend_EmailWithSubject(t *testing.T) {
	page := newComposePage(composeHTML)

	err := newSender().Send(context.Background(), page, models.SendRequest{Text: "Body", Channel: "email", Thread: "Offer"}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Offer", page.TypedText(".feed-compose__subject input"))
	assert.Equal(t, "Body", page.TypedText(".feed-compose__message"))
}

func TestSend_MissingSendButton(t *testing.T) {
	page := newComposePage(composeHTML)
	page.Mutate(func(doc *goquery.Document) {
		doc.Find(".feed-note__button").Remove()
	})

	err := newSender().Send(context.Background(), page, models.SendRequest{Text: "Hi", Channel: "note"}, nil)

	var pe *PreconditionError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, StepCompose, pe.Step)
	assert.Contains(t, pe.Error(), ".feed-note__button")
}

func TestSend_SubmitHookFiresBeforeClick(t *testing.T) {
	page := newComposePage(composeHTML)
	var clicksAtSubmit []string
	submits := 0

	err := newSender().Send(context.Background(), page, models.SendRequest{Text: "Hi", Channel: "note"}, func() {
		submits++
		clicksAtSubmit = append([]string(nil), page.Clicks...)
	})
	require.NoError(t, err)

	assert.Equal(t, 1, submits)
	assert.NotContains(t, clicksAtSubmit, ".feed-note__button")
	assert.Equal(t, 1, page.ClickCount(".feed-note__button"))
}

func TestSend_SubmitHookSkippedOnPrecondition(t *testing.T) {
	page := newComposePage(composeHTML)
	page.Mutate(func(doc *goquery.Document) {
		doc.Find(".feed-note__button").Remove()
	})
	submitted := false

	err := newSender().Send(context.Background(), page, models.SendRequest{Text: "Hi", Channel: "note"}, func() { submitted = true })

	assert.ErrorIs(t, err, models.ErrActionPrecondition)
	assert.False(t, submitted)
}
