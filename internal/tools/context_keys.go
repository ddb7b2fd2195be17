package tools

import "context"

type contextKey string

const replySourceKey contextKey = "reply_source"

// WithReplySource attaches the message source a task arrived on, so the
// send_message tool can route its reply back to the same channel.
func WithReplySource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, replySourceKey, source)
}

// ReplySourceFromCtx returns the reply source attached by WithReplySource,
// or "" if none was set.
func ReplySourceFromCtx(ctx context.Context) string {
	s, _ := ctx.Value(replySourceKey).(string)
	return s
}
