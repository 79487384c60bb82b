package common

// Selector names. Values are CSS selectors unless the name ends in _attr (attribute name)
// or names a feed item kind (bare class name matched against the item's class list).
const (
	SelLoginField      = "login_field"
	SelPasswordField   = "password_field"
	SelAuthSubmitBtn   = "auth_submit_btn"
	SelCaptcha         = "captcha"
	SelCaptchaResponse = "captcha_response"

	SelFeedsContainer   = "feeds_container"
	SelScrollElement    = "scroll_element"
	SelLeadCreated      = "lead_created"
	SelFeedExpandBtn    = "feed_expand_btn"
	SelMessageExpandBtn = "message_expand_btn"

	SelFeed                     = "feed"
	SelFeedIDAttr               = "feed_id_attr"
	SelFeedDate                 = "feed_date"
	SelMessageText              = "message_text"
	SelMessageAuthor            = "message_author"
	SelMessageAuthorNameAttr    = "message_author_name_attr"
	SelMessageAuthorIDAttr      = "message_author_id_attr"
	SelMessageAvatar            = "message_avatar"
	SelMessageAvatarUserIDAttr  = "message_avatar_user_id_attr"
	SelMessageAttach            = "message_attach"
	SelMessageAttachIDAttr      = "message_attach_id_attr"
	SelFeedContactLinked        = "feed_contact_linked"
	SelFeedSystem               = "feed_system"
	SelFeedSystemStatusChanged  = "feed_system_status_changed"
	SelFeedSystemStatusText     = "feed_system_status_changed_text"
	SelFeedSystemFieldChanged   = "feed_system_field_changed"
	SelFeedSystemFieldText      = "feed_system_field_changed_text"
	SelFeedSMS                  = "feed_sms"
	SelFeedSMSText              = "feed_sms_text"
	SelFeedNote                 = "feed_note"
	SelFeedNoteText             = "feed_note_text"
	SelFeedMail                 = "feed_mail"
	SelFeedMailHeader           = "feed_mail_header"
	SelFeedMailContent          = "feed_mail_content"
	SelFeedTask                 = "feed_task"
	SelFeedTaskHeader           = "feed_task_header"
	SelFeedTaskHeaderInner      = "feed_task_header_inner"
	SelFeedTaskDate             = "feed_task_date"
	SelFeedTaskContent          = "feed_task_content"
	SelFeedTaskResult           = "feed_task_result"
	SelFeedTaskCompleted        = "feed_task_completed"
	SelFeedCall                 = "feed_call"
	SelFeedCallInner            = "feed_call_inner"
	SelFeedCallDate             = "feed_call_date"
	SelFeedCallIncoming         = "feed_call_incoming"
	SelFeedCallDateText         = "feed_call_date_text"
	SelFeedCallContent          = "feed_call_content"
	SelFeedCallDuration         = "feed_call_duration"
	SelFeedCallURL              = "feed_call_url"
	SelFeedCallStatus           = "feed_call_status"
	SelMainField                = "main_field"
	SelCompanyField             = "company_field"
	SelContactField             = "contact_field"
	SelContactFields            = "contact_fields"
	SelMainFieldIDAttr          = "main_field_id_attr"
	SelMainFieldIDAttr2         = "main_field_id_attr2"
	SelMainFieldName            = "main_field_name"
	SelMainFieldNameSelect      = "main_field_name_select"
	SelMainFieldValue           = "main_field_value"
	SelMainFieldValueSelect     = "main_field_value_select"
	SelFeedSourceSwitcher       = "feed_source_switcher"
	SelFeedSwitcher             = "feed_switcher"
	SelFeedSourceSwitcherItem   = "feed_source_switcher_item"
	SelChatTargetSource         = "chat_target_source"
	SelChatSuggestList          = "chat_suggest_list"
	SelChatSourceItem           = "chat_source_item"
	SelFeedSendField            = "feed_send_field"
	SelFeedFieldMessage         = "feed_field_message"
	SelFeedSendBtn              = "feed_send_btn"
	SelFeedSubjectField         = "feed_subject_field"
)

// Selectors maps symbolic names to the page grammar of the CRM
type Selectors map[string]string

// Get returns the configured selector, or an empty string when unset
func (s Selectors) Get(name string) string {
	return s[name]
}

// DefaultSelectors returns the built-in selector table for amoCRM lead cards
func DefaultSelectors() Selectors {
	return Selectors{
		SelLoginField:      "#session_end_login",
		SelPasswordField:   "#password",
		SelAuthSubmitBtn:   "#auth_submit",
		SelCaptcha:         ".g-recaptcha",
		SelCaptchaResponse: "#g-recaptcha-response",

		SelFeedsContainer:   ".notes-wrapper",
		SelScrollElement:    ".notes-wrapper__scroller",
		SelLeadCreated:      ".feed-note-wrapper-lead_created",
		SelFeedExpandBtn:    ".feed-note__joined-more",
		SelMessageExpandBtn: ".feed-note__expand-link",

		SelFeed:                    ".feed-note-wrapper",
		SelFeedIDAttr:              "data-id",
		SelFeedDate:                ".feed-note__date",
		SelMessageText:             ".feed-note__message_paragraph",
		SelMessageAuthor:           ".feed-note__amojo-user",
		SelMessageAuthorNameAttr:   "title",
		SelMessageAuthorIDAttr:     "data-id",
		SelMessageAvatar:           ".feed-note__avatar",
		SelMessageAvatarUserIDAttr: "data-contact-id",
		SelMessageAttach:           ".feed-note__attachment",
		SelMessageAttachIDAttr:     "data-id",
		SelFeedContactLinked:       ".feed-note__linked-entity",
		SelFeedSystem:              "feed-note-wrapper-system",
		SelFeedSystemStatusChanged: "feed-note-wrapper-lead_status_changed",
		SelFeedSystemStatusText:    ".feed-note__lead-status",
		SelFeedSystemFieldChanged:  "feed-note-wrapper-field_changed",
		SelFeedSystemFieldText:     ".feed-note__field-changed",
		SelFeedSMS:                 "feed-note-wrapper-sms",
		SelFeedSMSText:             ".feed-note__sms-text",
		SelFeedNote:                "feed-note-wrapper-note",
		SelFeedNoteText:            ".feed-note__message_paragraph",
		SelFeedMail:                "feed-note-wrapper-mail",
		SelFeedMailHeader:          ".feed-note__mail-header",
		SelFeedMailContent:         ".feed-note__mail-subject",
		SelFeedTask:                "feed-note-wrapper-task",
		SelFeedTaskHeader:          ".feed-note__task-header",
		SelFeedTaskHeaderInner:     ".feed-note__task-header-inner",
		SelFeedTaskDate:            ".feed-note__task-date",
		SelFeedTaskContent:         ".feed-note__task-text",
		SelFeedTaskResult:          ".feed-note__task-result",
		SelFeedTaskCompleted:       ".feed-note__task-completed",
		SelFeedCall:                "feed-note-wrapper-call",
		SelFeedCallInner:           ".feed-note__call-header",
		SelFeedCallDate:            ".feed-note__call-date",
		SelFeedCallIncoming:        ".feed-note__call-incoming",
		SelFeedCallDateText:        ".feed-note__call-date-text",
		SelFeedCallContent:         ".feed-note__call-text",
		SelFeedCallDuration:        ".feed-note__call-duration",
		SelFeedCallURL:             ".feed-note__call-record a",
		SelFeedCallStatus:          ".feed-note__call-status",
		SelMainField:               "#edit_card .linked-form__field",
		SelCompanyField:            "#companies_list .linked-form__field",
		SelContactField:            "#contacts_list .linked-form__multiple-container",
		SelContactFields:           ".linked-form__field",
		SelMainFieldIDAttr:         "data-id",
		SelMainFieldIDAttr2:        "data-id",
		SelMainFieldName:           ".linked-form__field__label",
		SelMainFieldNameSelect:     ".control--select--button-inner",
		SelMainFieldValue:          ".linked-form__field__value",
		SelMainFieldValueSelect:    "input[type=hidden]",
		SelFeedSourceSwitcher:      ".feed-compose-switcher__item",
		SelFeedSwitcher:            ".feed-compose-switcher",
		SelFeedSourceSwitcherItem:  ".feed-compose-switcher__item",
		SelChatTargetSource:        ".feed-compose__talk-recipient",
		SelChatSuggestList:         ".users-select-suggest .users-select-row__inner",
		SelChatSourceItem:          ".users-select-row__inner",
		SelFeedSendField:           ".feed-compose__message-wrapper",
		SelFeedFieldMessage:        ".feed-compose__message",
		SelFeedSendBtn:             ".feed-note__button",
		SelFeedSubjectField:        ".feed-compose__subject input",
	}
}
