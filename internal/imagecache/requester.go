package imagecache

import "context"

// DefaultRequester tags preloads issued without an explicit requester.
const DefaultRequester = "default"

type requesterKey struct{}

// WithRequester tags preloads issued with ctx, so they can be canceled together through Cancel.
func WithRequester(ctx context.Context, requesterID string) context.Context {
	return context.WithValue(ctx, requesterKey{}, requesterID)
}

// RequesterFrom returns the requester ctx was tagged with, or DefaultRequester.
func RequesterFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requesterKey{}).(string); ok && id != "" {
		return id
	}
	return DefaultRequester
}
