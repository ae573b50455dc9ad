// Package messenger sends outbound chat messages.
package messenger

import "context"

// Messenger delivers a text message to a user's chat channel.
type Messenger interface {
	Send(ctx context.Context, userID, text string) error
}
