package internal

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type ctxKey struct{}

// WithRequestID stores id in the context, generating one when id is empty.
// An id already present in the context wins.
func WithRequestID(ctx context.Context, id string) context.Context {
	if existing := GetRequestID(ctx); existing != "" {
		return ctx
	}
	if id == "" || len(id) > 64 {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKey{}, id)
}

func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// requestIDHandler tags every request with the caller's X-Request-Id or a new one
// and echoes it back in the response.
func requestIDHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithRequestID(r.Context(), r.Header.Get(requestIDHeader))
		w.Header().Set(requestIDHeader, GetRequestID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
