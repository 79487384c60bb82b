package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

const testBaseURL = "https://example.amocrm.ru"

const identityScript = `<script>var x = 1;</script>
<script>AMOCRM.constant('amojo_chats',{"broken":);</script>
<script>AMOCRM.constant('amojo_chats',{"chat1":{"users":{"55":{"id":900},"56":{"id":901}},"contacts":{"7":{"id":901}}}});</script>`

const fieldsHTML = `<div id="edit_card">
  <div class="linked-form__field" data-id="100">
    <div class="linked-form__field__label">Budget</div>
    <div class="linked-form__field__value">  1 000 RUB </div>
  </div>
  <div class="linked-form__field">
    <div class="linked-form__field__label"><span class="control--select--button-inner" data-id="200">Source</span></div>
    <div class="linked-form__field__value"><input type="hidden" value="Website"><span>Website shown</span></div>
  </div>
</div>
<div id="companies_list">
  <div class="linked-form__field" data-id="300">
    <div class="linked-form__field__label">INN</div>
    <div class="linked-form__field__value">7701</div>
  </div>
</div>
<div id="contacts_list">
  <div class="linked-form__multiple-container">
    <div class="linked-form__field" data-id="1"><div class="linked-form__field__label">Phone</div><div class="linked-form__field__value">+7 999</div></div>
  </div>
  <div class="linked-form__multiple-container">
    <div class="linked-form__field" data-id="2"><div class="linked-form__field__label">Email</div><div class="linked-form__field__value">a@b.c</div></div>
  </div>
</div>`

const feedHTML = `<div class="notes-wrapper"><div class="notes-wrapper__scroller">
<div class="feed-note-wrapper" data-id="101">
  <span class="feed-note__date">12.03.2024 10:15</span>
  <span class="feed-note__amojo-user" title="Ivan   Petrov" data-id="55"></span>
  <p class="feed-note__message_paragraph">Hello&nbsp;there </p>
</div>
<div class="feed-note-wrapper feed-note-wrapper-sms" data-id="102">
  <span class="feed-note__date">Сегодня 09:00</span>
  <div class="feed-note__sms-text">Code 1234</div>
  <div class="feed-note__linked-entity"><a href="/contacts/detail/7">Anna</a></div>
</div>
<div class="feed-note-wrapper feed-note-wrapper-note" data-id="103">
  <span class="feed-note__date">Вчера 18:40</span>
  <p class="feed-note__message_paragraph">Remember the discount</p>
</div>
<div class="feed-note-wrapper feed-note-wrapper-system feed-note-wrapper-field_changed" data-id="104">
  <span class="feed-note__amojo-user" title="Robot"></span>
  <div class="feed-note__field-changed">Budget: 100 to 200</div>
</div>
<div class="feed-note-wrapper feed-note-wrapper-mail" data-id="105">
  <div class="feed-note__mail-header">11.03.2024 18:00&nbsp;<span class="feed-note__amojo-user">a@x.ru</span>&nbsp;<span class="feed-note__amojo-user">b@y.ru</span></div>
  <div class="feed-note__mail-subject"><a href="https://mail.example/1">Offer</a></div>
</div>
<div class="feed-note-wrapper feed-note-wrapper-task" data-id="106">
  <div class="feed-note__task-header">
    <div class="feed-note__task-header-inner">Задача&nbsp;от&nbsp;Ivan&nbsp;для&nbsp;Anna</div>
    <span class="feed-note__task-date">13.03.2024 12:00 <b>overdue</b></span>
  </div>
  <div class="feed-note__task-text">Call back</div>
  <div class="feed-note__task-result">Done</div>
  <div class="feed-note__task-completed"></div>
</div>
<div class="feed-note-wrapper feed-note-wrapper-call" data-id="107">
  <div class="feed-note__call-header"><span class="feed-note__call-date">10.03.2024 08:30</span>&nbsp;<span class="feed-note__amojo-user">Ivan</span>&nbsp;кому:&nbsp;+79990001122</div>
  <div class="feed-note__call-text">Discussed price&nbsp;2 min</div>
  <div class="feed-note__call-duration">02:15</div>
  <div class="feed-note__call-record"><a href="https://records.example/7.mp3">record</a></div>
  <div class="feed-note__call-status">Completed</div>
</div>
</div></div>`

func leadPageHTML(withStart bool) string {
	start := ""
	if withStart {
		start = `<div class="feed-note-wrapper-lead_created"></div>`
	}
	return "<html><head>" + identityScript + "</head><body>" + fieldsHTML + start + feedHTML + "</body></html>"
}

func newDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}
