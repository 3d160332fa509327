// Package artifact tracks the single channel message the bot keeps up to date.
//
// The message id is persisted so a restart edits the same message instead of
// posting a new one. A message deleted by someone else is re-created on the
// next update. Tracker is driven by one trigger and is not safe for concurrent use.
package artifact

import (
	"context"
	"errors"

	"github.com/disgoorg/snowflake/v2"

	"github.com/pv/gameserver-status-bot/internal/display"
)

var (
	// ErrNotFound the message (or channel) no longer exists; triggers re-creation.
	ErrNotFound = errors.New("artifact: message not found")
	// ErrPermissionDenied the bot may not read or edit the message; not auto-recovered.
	ErrPermissionDenied = errors.New("artifact: permission denied")
)

// Ref identifies the tracked message. MessageID 0 means "not created yet".
type Ref struct {
	ChannelID snowflake.ID
	MessageID snowflake.ID
}

func (r Ref) Valid() bool { return r.ChannelID != 0 && r.MessageID != 0 }

// Message is the part of a channel message needed to adopt it.
type Message struct {
	ID       snowflake.ID
	AuthorID snowflake.ID
	Title    string // title of the first embed, "" if none
}

// Messenger is the chat platform as seen by the tracker. Implementations map
// platform errors onto ErrNotFound / ErrPermissionDenied; anything else is transient.
type Messenger interface {
	SendEmbed(ctx context.Context, channelID snowflake.ID, out display.Output) (snowflake.ID, error)
	EditEmbed(ctx context.Context, channelID, messageID snowflake.ID, out display.Output) error
	FetchMessage(ctx context.Context, channelID, messageID snowflake.ID) error
	RecentMessages(ctx context.Context, channelID snowflake.ID, limit int) ([]Message, error)
	SelfID() snowflake.ID
}
