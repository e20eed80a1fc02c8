package relay

import (
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	relayDomain "github.com/orris-inc/ticketwatch/internal/domain/relay"
	"github.com/orris-inc/ticketwatch/internal/domain/ticket"
)

const (
	newTicketColor = "#A31E24"
	followUpColor  = "#FFCC01"

	unassignedLabel = "未割り当て"
)

// MessageBuilder composes the chat messages the relay posts. It owns the
// assignee-to-mention mapping and strips any HTML the tracker lets through
// in ticket descriptions before they reach the channel.
type MessageBuilder struct {
	trackerBaseURL string
	mentions       map[string]string
	sanitizer      *bluemonday.Policy
}

// NewMessageBuilder creates a builder. trackerBaseURL is the tracker root
// used for ticket links; mentions maps tracker assignee display names to
// chat member IDs.
func NewMessageBuilder(trackerBaseURL string, mentions map[string]string) *MessageBuilder {
	if mentions == nil {
		mentions = map[string]string{}
	}
	return &MessageBuilder{
		trackerBaseURL: strings.TrimRight(trackerBaseURL, "/"),
		mentions:       mentions,
		sanitizer:      bluemonday.StrictPolicy(),
	}
}

// NewTicket builds the announcement for a freshly relayed ticket.
func (b *MessageBuilder) NewTicket(tk *ticket.Ticket) relayDomain.Message {
	text := "新しいチケットが作成されました。"
	if mention := b.mention(tk.AssigneeName()); mention != "" {
		text += mention
	}
	return relayDomain.Message{
		Text:          text,
		Color:         newTicketColor,
		Title:         b.title(tk),
		TitleLink:     b.issueURL(tk.ID()),
		Footer:        b.footer(tk),
		TimestampHint: tk.CreatedAt(),
	}
}

// FollowUp builds the unattended-ticket nudge.
func (b *MessageBuilder) FollowUp(tk *ticket.Ticket) relayDomain.Message {
	text := "下記のチケットが未着手です。"
	if mention := b.mention(tk.AssigneeName()); mention != "" {
		text += mention
	}
	return relayDomain.Message{
		Text:          text,
		Color:         followUpColor,
		Title:         b.title(tk),
		TitleLink:     b.issueURL(tk.ID()),
		Footer:        b.footer(tk),
		TimestampHint: tk.CreatedAt(),
	}
}

func (b *MessageBuilder) title(tk *ticket.Ticket) string {
	return fmt.Sprintf("%s #%d: %s", tk.TrackerName(), tk.ID(), tk.Subject())
}

func (b *MessageBuilder) issueURL(id int) string {
	return fmt.Sprintf("%s/issues/%d", b.trackerBaseURL, id)
}

func (b *MessageBuilder) footer(tk *ticket.Ticket) string {
	assignee := tk.AssigneeName()
	if assignee == "" {
		assignee = unassignedLabel
	}
	description := b.sanitizer.Sanitize(tk.Description())
	return fmt.Sprintf("%s\n担当者: %s", description, assignee)
}

// mention renders the chat @-mention for a tracker assignee name, empty
// when the name is unassigned or not in the mapping.
func (b *MessageBuilder) mention(assigneeName string) string {
	if assigneeName == "" {
		return ""
	}
	memberID, ok := b.mentions[assigneeName]
	if !ok || memberID == "" {
		return ""
	}
	return fmt.Sprintf("<@%s>", memberID)
}
