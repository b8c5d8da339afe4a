package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-orders/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-orders/pkg/auth"
	"github.com/angelmondragon/storefront-orders/pkg/config"
	"github.com/angelmondragon/storefront-orders/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-orders/pkg/errors"
	"github.com/angelmondragon/storefront-orders/pkg/logger"
)

type adminChecker interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
}

// AdminAuth validates a bearer token and confirms the subject is still on the
// admin list before seeding the request context with the admin email.
func AdminAuth(cfg config.JWTConfig, admins adminChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgAuth.ParseAdminToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			if admins != nil {
				ok, err := admins.IsAdmin(r.Context(), claims.Email)
				if err != nil {
					responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve admin"))
					return
				}
				if !ok {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
					return
				}
			}

			ctx := WithAdminEmail(r.Context(), claims.Email)
			if logg != nil {
				ctx = logg.WithActor(ctx, enums.AdminActor(claims.Email))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
