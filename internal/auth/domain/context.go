package domain

import "context"

// RequestMeta carries the client-facing facts of the current request so the
// audit trail can record them without the services taking ip/userAgent
// parameters everywhere.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type requestMetaKey struct{}

func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
