package tools

import "context"

type chatIDKey struct{}

// WithChatID records the chat a tool invocation acts on behalf of. The value
// comes from the trusted message/task path, never from model parameters.
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey{}, chatID)
}

// ChatIDFrom returns the calling chat id, or "" when none is set.
func ChatIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(chatIDKey{}).(string); ok {
		return v
	}
	return ""
}
