package middleware

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/google/uuid"
)

type ContextKey string

const OperatorIDKey ContextKey = "operatorID"

const operatorSessionKey = "operatorID"

// LoadOperator gives every session a stable operator id. Heat drafts are kept per operator, so two
// timekeepers on the same group never see each other's half-entered results.
func LoadOperator(sessionManager *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idStr := sessionManager.GetString(r.Context(), operatorSessionKey)
			id, err := uuid.Parse(idStr)
			if err != nil {
				id = uuid.New()
				sessionManager.Put(r.Context(), operatorSessionKey, id.String())
			}

			ctx := context.WithValue(r.Context(), OperatorIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetOperatorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	val := ctx.Value(OperatorIDKey)
	if val == nil {
		return uuid.Nil, false
	}

	id, ok := val.(uuid.UUID)
	return id, ok
}
