package port

import "context"

// MessageSender posts plain-text notifications to a chat
type MessageSender interface {
	SendText(ctx context.Context, content string) error
}
