// Package transport defines the channel-agnostic messaging contract
// between the bot core and the outbound delivery adapter.
package transport

import "context"

// Message is one inbound chat message.
type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	FromName     string
	Text         string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Notification is one outbound message queued for async delivery.
type Notification struct {
	Target  ChatTarget
	Text    string
	Options *SendOptions
}

// Sender is the minimal outbound surface. The notifier and the bot
// command flow both depend on this rather than on a concrete adapter.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

// Adapter is a full messaging transport: it feeds inbound updates into
// the provided channel and can deliver outbound messages.
type Adapter interface {
	Sender
	Start(ctx context.Context, out chan<- Message) error
	Stop(ctx context.Context) error
}
