// Package chat defines the narrow surface the bot needs from the chat
// platform: sending messages, waiting for a matching message, and
// resolving users. The discord package provides the production adapter.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrUserNotFound = errors.New("user not found")

// Message is a chat message observed on any channel the bot can read.
type Message struct {
	ID        string
	GuildID   string
	ChannelID string
	AuthorID  string
	Content   string
}

// User is a resolved chat-platform account.
type User struct {
	ID       string
	Username string
}

type Sender interface {
	SendMessage(ctx context.Context, channelID, content string) error
}

type UserResolver interface {
	ResolveUser(ctx context.Context, userID string) (User, error)
}

// MessageWaiter blocks until a message satisfying match arrives or ctx is
// done, in which case ctx.Err() is returned.
type MessageWaiter interface {
	WaitForMessage(ctx context.Context, match func(Message) bool) (Message, error)
}

// Gateway is everything the payment and payout flows need.
type Gateway interface {
	Sender
	UserResolver
	MessageWaiter
}

// StatusError carries the HTTP status of a failed platform REST call so
// callers can decide whether a retry is worthwhile.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat platform status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Mention renders the platform mention markup for a user id.
func Mention(userID string) string {
	return "<@" + userID + ">"
}

// MentionIndex returns the byte offset of the first mention of userID in
// text, accepting both the plain and the legacy nickname form.
func MentionIndex(text, userID string) int {
	if strings.TrimSpace(userID) == "" {
		return -1
	}
	idx := -1
	for _, m := range []string{"<@" + userID + ">", "<@!" + userID + ">"} {
		if i := strings.Index(text, m); i >= 0 && (idx < 0 || i < idx) {
			idx = i
		}
	}
	return idx
}
