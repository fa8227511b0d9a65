// Package lineutil provides helpers for building and sending LINE
// messages: text and template builders, fluent Flex wrappers, and the
// reply/push senders.
package lineutil

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Action is an alias for the LINE SDK action interface.
type Action = messaging_api.ActionInterface

// LINE API limits
const (
	maxTextMessageBytes = 5000
	maxAltTextBytes     = 400
	maxTemplateActions  = 4
	maxQuickReplyItems  = 13
	maxCarouselColumns  = 10
)

// QuickReplyItem is one quick reply button
type QuickReplyItem struct {
	Label string
	Text  string
}

// NewTextMessage creates a text message, truncating over-long content.
func NewTextMessage(text string) *messaging_api.TextMessage {
	if len(text) > maxTextMessageBytes {
		text = TruncateRunes(text, maxTextMessageBytes/3)
	}
	return &messaging_api.TextMessage{Text: text}
}

// NewTextMessageWithQuickReply creates a text message with quick reply
// buttons that send their Text back as a user message.
func NewTextMessageWithQuickReply(text string, items []QuickReplyItem) *messaging_api.TextMessage {
	msg := NewTextMessage(text)
	if len(items) == 0 {
		return msg
	}
	if len(items) > maxQuickReplyItems {
		items = items[:maxQuickReplyItems]
	}

	qrItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		qrItems[i] = messaging_api.QuickReplyItem{
			Action: NewMessageAction(item.Label, item.Text),
		}
	}
	msg.QuickReply = &messaging_api.QuickReply{Items: qrItems}
	return msg
}

// NewButtonsTemplate creates a buttons template message.
func NewButtonsTemplate(altText, title, text string, actions []Action) messaging_api.MessageInterface {
	if len(actions) > maxTemplateActions {
		actions = actions[:maxTemplateActions]
	}
	if len(text) > 160 {
		text = TruncateRunes(text, 52)
	}
	if len(altText) > maxAltTextBytes {
		altText = TruncateRunes(altText, maxAltTextBytes/3)
	}

	template := &messaging_api.ButtonsTemplate{
		Text:    text,
		Actions: actions,
	}
	if title != "" {
		template.Title = TruncateRunes(title, 13)
	}
	return &messaging_api.TemplateMessage{
		AltText:  altText,
		Template: template,
	}
}

// NewConfirmTemplate creates a yes/no confirmation template.
func NewConfirmTemplate(altText, text string, yesAction, noAction Action) messaging_api.MessageInterface {
	return &messaging_api.TemplateMessage{
		AltText: altText,
		Template: &messaging_api.ConfirmTemplate{
			Text:    text,
			Actions: []messaging_api.ActionInterface{yesAction, noAction},
		},
	}
}

// NewMessageAction creates an action that sends text as a user message.
func NewMessageAction(label, text string) Action {
	return &messaging_api.MessageAction{
		Label: label,
		Text:  text,
	}
}

// NewPostbackAction creates an action that sends postback data.
func NewPostbackAction(label, data string) Action {
	return &messaging_api.PostbackAction{
		Label: label,
		Data:  data,
	}
}

// NewPostbackActionWithDisplayText creates a postback action that also
// shows displayText in the chat when tapped.
func NewPostbackActionWithDisplayText(label, displayText, data string) Action {
	return &messaging_api.PostbackAction{
		Label:       label,
		DisplayText: displayText,
		Data:        data,
	}
}

// NewURIAction creates an action that opens a URL.
func NewURIAction(label, uri string) Action {
	return &messaging_api.UriAction{
		Label: label,
		Uri:   uri,
	}
}

// ErrorMessage is the generic fallback for unexpected failures.
func ErrorMessage() messaging_api.MessageInterface {
	return NewTextMessage("❌ 不好意思，系統暫時出了點狀況\n\n請稍後再試一次，造成不便請見諒。")
}

// TruncateRunes truncates text by rune count, appending "..." when cut.
func TruncateRunes(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	if maxRunes <= 3 {
		return string(runes[:maxRunes])
	}
	return string(runes[:maxRunes-3]) + "..."
}
