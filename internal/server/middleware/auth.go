package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// AppClaims is the custom JWT claims structure carried by the optional
// session cookie.
type AppClaims struct {
	Right int `json:"right,omitempty"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware resolves the optional session-token cookie into the
// request metadata. A missing or invalid cookie is not a rejection: the
// connection proceeds as a guest and may authenticate later through the
// login/register/set-token events.
func NewAuthMiddleware(logger *slog.Logger, jwtSecret string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			cookie, err := r.Cookie("session-token")
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			token, err := jwt.ParseWithClaims(cookie.Value, &AppClaims{}, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})
			if err != nil || !token.Valid {
				logger.Warn("invalid session token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			claims, ok := token.Claims.(*AppClaims)
			if !ok || claims.Subject == "" {
				logger.Warn("valid token missing 'sub' claim", slog.String("ip", reqMeta.IP))
				next.ServeHTTP(w, r)
				return
			}
			userID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				logger.Warn("session token 'sub' claim is not a user id", slog.String("ip", reqMeta.IP))
				next.ServeHTTP(w, r)
				return
			}

			reqMeta.UserID = userID
			reqMeta.Right = claims.Right
			next.ServeHTTP(w, r)
		})
	}
}
