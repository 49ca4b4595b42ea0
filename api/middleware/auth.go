package middleware

import (
	"net/http"
	"strings"

	"github.com/seahsky/joho-erp-sub004/api/responses"
	"github.com/seahsky/joho-erp-sub004/internal/orders"
	pkgAuth "github.com/seahsky/joho-erp-sub004/pkg/auth"
	"github.com/seahsky/joho-erp-sub004/pkg/config"
	pkgerrors "github.com/seahsky/joho-erp-sub004/pkg/errors"
	"github.com/seahsky/joho-erp-sub004/pkg/logger"
)

// Auth verifies the bearer token minted by the identity service and puts the
// actor it names on the request context.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, r, logg, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing bearer token"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				unauthorized(w, r, logg, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			actor := orders.Actor{ID: claims.ActorID(), Role: claims.Role, CustomerID: claims.CustomerID}
			ctx := WithActor(r.Context(), actor)
			if logg != nil {
				ctx = logg.WithActor(ctx, actor.ID, string(actor.Role))
				if actor.CustomerID != nil {
					ctx = logg.WithField(ctx, "customer_id", actor.CustomerID.String())
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads "Authorization: Bearer <token>". The scheme is case
// insensitive; other schemes are refused.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, logg *logger.Logger, err error) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="joho"`)
	responses.WriteError(r.Context(), logg, w, err)
}
