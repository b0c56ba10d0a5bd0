package context

import "context"

type ctxKey int

const (
	requestIDKey ctxKey = iota
	formKey
	clientIPKey
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

func WithFormKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, formKey, key)
}

func FormKeyFromContext(ctx context.Context) string {
	value, _ := ctx.Value(formKey).(string)
	return value
}

func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

func ClientIPFromContext(ctx context.Context) string {
	value, _ := ctx.Value(clientIPKey).(string)
	return value
}
