// Package action drives the lead card compose box.
package action

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/leadharvest/internal/common"
	"github.com/ternarybob/leadharvest/internal/interfaces"
	"github.com/ternarybob/leadharvest/internal/models"
)

// Send steps, in order
const (
	StepChannels      = "channels"
	StepSwitchChannel = "switch_channel"
	StepChatContact   = "chat_contact"
	StepSubject       = "subject"
	StepCompose       = "compose"
	StepSubmit        = "submit"
)

// PreconditionError reports the send step whose control was missing. It wraps
// models.ErrActionPrecondition.
type PreconditionError struct {
	Step   string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("send precondition failed at %s: %s", e.Step, e.Reason)
}

func (e *PreconditionError) Unwrap() error {
	return models.ErrActionPrecondition
}

func precondition(step, format string, args ...any) error {
	return &PreconditionError{Step: step, Reason: fmt.Sprintf(format, args...)}
}

// Config sets the pauses between compose interactions
type Config struct {
	ClickDelay  time.Duration // After focusing a control
	SwitchDelay time.Duration // After switching channel or picking a contact
	SettleDelay time.Duration // After opening the contact picker and after sending
	TypeDelay   time.Duration // Per key when typing the message
	WaitTimeout time.Duration // Bound on waiting for the contact picker
}

// ConfigFrom maps configuration to sender settings
func ConfigFrom(config *common.Config) Config {
	click := common.Duration(config.Extraction.ClickDelay, time.Second)
	return Config{
		ClickDelay:  click,
		SwitchDelay: 2 * click,
		SettleDelay: common.Duration(config.Extraction.SendSettleDelay, 5*time.Second),
		TypeDelay:   common.Duration(config.Extraction.MessageTypeDelay, 10*time.Millisecond),
		WaitTimeout: common.Duration(config.Session.LoadTimeout, 60*time.Second),
	}
}

// Sender posts messages through the compose box of an open lead card
type Sender struct {
	sel    common.Selectors
	config Config
	logger arbor.ILogger
}

// NewSender creates a sender
func NewSender(sel common.Selectors, config Config, logger arbor.ILogger) *Sender {
	if config.WaitTimeout <= 0 {
		config.WaitTimeout = 60 * time.Second
	}
	return &Sender{sel: sel, config: config, logger: logger}
}

func withID(selector, id string) string {
	return fmt.Sprintf(`%s[data-id="%s"]`, selector, strings.ReplaceAll(id, `"`, `\"`))
}

func (s *Sender) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// clickIfPresent clicks the first match, reporting false when nothing matches
func (s *Sender) clickIfPresent(ctx context.Context, page interfaces.Page, selector string, count int) (bool, error) {
	found, err := page.Exists(ctx, selector)
	if err != nil || !found {
		return false, err
	}
	if err := page.Click(ctx, selector, count); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Sender) availableChannels(ctx context.Context, page interfaces.Page) ([]string, error) {
	ids, err := page.Attributes(ctx, s.sel.Get(common.SelFeedSourceSwitcher), "data-id")
	if err != nil {
		return nil, err
	}
	channels := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(channels, id) {
			channels = append(channels, id)
		}
	}
	return channels, nil
}

func (s *Sender) switchChannel(ctx context.Context, page interfaces.Page, channel string) error {
	ok, err := s.clickIfPresent(ctx, page, s.sel.Get(common.SelFeedSwitcher), 1)
	if err != nil {
		return err
	}
	if !ok {
		return precondition(StepSwitchChannel, "channel switcher not found")
	}

	ok, err = s.clickIfPresent(ctx, page, withID(s.sel.Get(common.SelFeedSourceSwitcherItem), channel), 1)
	if err != nil {
		return err
	}
	if !ok {
		return precondition(StepSwitchChannel, "channel %q has no switcher item", channel)
	}
	return s.pause(ctx, s.config.SwitchDelay)
}

// openContactPicker opens the chat recipient list. It reports false when the card
// has no recipient control.
func (s *Sender) openContactPicker(ctx context.Context, page interfaces.Page) (bool, error) {
	ok, err := s.clickIfPresent(ctx, page, s.sel.Get(common.SelChatTargetSource), 1)
	if err != nil || !ok {
		return false, err
	}
	if err := s.pause(ctx, s.config.SettleDelay); err != nil {
		return false, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.config.WaitTimeout)
	defer cancel()
	if err := page.WaitVisible(waitCtx, s.sel.Get(common.SelChatSuggestList)); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, precondition(StepChatContact, "contact picker did not open")
	}
	return true, nil
}

// ReadChannels lists the compose channels of the open card. When chat is offered the
// external chat contacts from the recipient picker are listed too.
func (s *Sender) ReadChannels(ctx context.Context, page interfaces.Page) (*models.ChannelList, error) {
	list := &models.ChannelList{Available: []string{}, Chat: []string{}}

	channels, err := s.availableChannels(ctx, page)
	if err != nil {
		return nil, err
	}
	list.Available = channels

	if !slices.Contains(channels, models.ChannelChat) {
		return list, nil
	}

	if err := s.switchChannel(ctx, page, models.ChannelChat); err != nil {
		if !isPrecondition(err) {
			return nil, err
		}
		s.logger.Warn().Err(err).Msg("Chat channel offered but not selectable")
		return list, nil
	}

	opened, err := s.openContactPicker(ctx, page)
	if err != nil {
		if !isPrecondition(err) {
			return nil, err
		}
		s.logger.Warn().Err(err).Msg("Chat contact picker unavailable")
		return list, nil
	}
	if !opened {
		return list, nil
	}

	ids, err := page.Attributes(ctx, s.sel.Get(common.SelChatSourceItem)+`[data-group="external"]`, "data-id")
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id != "" {
			list.Chat = append(list.Chat, id)
		}
	}

	s.logger.Debug().
		Int("channels", len(list.Available)).
		Int("chat_contacts", len(list.Chat)).
		Msg("Read compose channels")
	return list, nil
}

// Send posts req.Text on the open card. A missing control yields a *PreconditionError.
// onSubmitted, when set, is called once just before the send button is clicked; after
// that point the message may have been posted whatever Send returns.
func (s *Sender) Send(ctx context.Context, page interfaces.Page, req models.SendRequest, onSubmitted func()) error {
	channels, err := s.availableChannels(ctx, page)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		return precondition(StepChannels, "card offers no compose channels")
	}
	if !slices.Contains(channels, req.Channel) {
		return precondition(StepChannels, "channel %q not offered (available: %s)", req.Channel, strings.Join(channels, ", "))
	}

	if err := s.switchChannel(ctx, page, req.Channel); err != nil {
		return err
	}

	if req.Channel == models.ChannelChat && req.ContactID != "" {
		if err := s.pickChatContact(ctx, page, req.ContactID); err != nil {
			return err
		}
	}

	if req.Channel == models.ChannelEmail && req.Thread != "" {
		if err := s.fillSubject(ctx, page, req.Thread); err != nil {
			return err
		}
	}

	ok, err := s.clickIfPresent(ctx, page, s.sel.Get(common.SelFeedSendField), 1)
	if err != nil {
		return err
	}
	if !ok {
		return precondition(StepCompose, "compose field not found")
	}
	if err := s.pause(ctx, s.config.ClickDelay); err != nil {
		return err
	}

	messageField := s.sel.Get(common.SelFeedFieldMessage)
	sendButton := s.sel.Get(common.SelFeedSendBtn)
	for _, selector := range []string{messageField, sendButton} {
		found, err := page.Exists(ctx, selector)
		if err != nil {
			return err
		}
		if !found {
			return precondition(StepCompose, "%s not found", selector)
		}
	}

	if err := page.Click(ctx, messageField, 3); err != nil {
		return err
	}
	if err := page.Type(ctx, messageField, req.Text, s.config.TypeDelay); err != nil {
		return err
	}
	if onSubmitted != nil {
		onSubmitted()
	}
	if err := page.Click(ctx, sendButton, 1); err != nil {
		return fmt.Errorf("%s: %w", StepSubmit, err)
	}

	s.logger.Info().
		Str("lead_id", req.LeadID).
		Str("channel", req.Channel).
		Msg("Message submitted")
	return s.pause(ctx, s.config.SettleDelay)
}

func (s *Sender) pickChatContact(ctx context.Context, page interfaces.Page, contactID string) error {
	opened, err := s.openContactPicker(ctx, page)
	if err != nil || !opened {
		// No recipient control: the chat goes to the default contact
		return err
	}

	item := withID(s.sel.Get(common.SelChatSourceItem), contactID)
	waitCtx, cancel := context.WithTimeout(ctx, s.config.WaitTimeout)
	defer cancel()
	if err := page.WaitVisible(waitCtx, item); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return precondition(StepChatContact, "chat contact %q not in picker", contactID)
	}

	if err := page.Click(ctx, item, 1); err != nil {
		return err
	}
	return s.pause(ctx, s.config.SwitchDelay)
}

func (s *Sender) fillSubject(ctx context.Context, page interfaces.Page, subject string) error {
	field := s.sel.Get(common.SelFeedSubjectField)
	ok, err := s.clickIfPresent(ctx, page, field, 3)
	if err != nil || !ok {
		return err
	}
	return page.Type(ctx, field, subject, s.config.TypeDelay)
}

func isPrecondition(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
