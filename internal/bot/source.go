package bot

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// UserIDFromSource extracts the acting user's ID from an event source.
// Returns "" for sources with no user (should not happen for the event
// types we handle).
func UserIDFromSource(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.UserId
	case webhook.RoomSource:
		return s.UserId
	default:
		return ""
	}
}

// IsPersonalChat reports whether the event came from a 1:1 chat.
func IsPersonalChat(source webhook.SourceInterface) bool {
	_, ok := source.(webhook.UserSource)
	return ok
}

// ChatIDFromSource returns the chat ID push messages should target.
func ChatIDFromSource(source webhook.SourceInterface) string {
	switch s := source.(type) {
	case webhook.UserSource:
		return s.UserId
	case webhook.GroupSource:
		return s.GroupId
	case webhook.RoomSource:
		return s.RoomId
	default:
		return ""
	}
}
