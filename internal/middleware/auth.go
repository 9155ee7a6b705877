// Package middleware содержит HTTP middleware маркетплейса услуг.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/mmeshcher/servimarket-system/internal/model"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	authCookieName = "auth_token"
	authCookieTTL  = 365 * 24 * time.Hour
)

// Actor описывает аутентифицированного пользователя запроса.
type Actor struct {
	UserID string
	Role   model.Role
}

// AuthMiddleware выполняет проверку аутентификации пользователя по подписанному cookie.
// Подписанное значение несёт идентификатор пользователя и его роль.
type AuthMiddleware struct {
	secretKey []byte
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware с указанным секретным ключом.
func NewAuthMiddleware(secret string) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey: key,
	}
}

// Middleware проверяет cookie авторизации и добавляет участника в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(authCookieName)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		actor, ok := a.parseCookie(cookie.Value)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole пропускает запрос только для участников с указанной ролью.
func RequireRole(role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := GetActorFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if actor.Role != role {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SetAuthCookie устанавливает cookie авторизации для указанного участника.
func (a *AuthMiddleware) SetAuthCookie(w http.ResponseWriter, actor Actor) {
	value := a.sign(encodeActor(actor))

	cookie := &http.Cookie{
		Name:     authCookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(authCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

func encodeActor(actor Actor) string {
	return actor.UserID + ":" + string(actor.Role)
}

func decodeActor(payload string) (Actor, bool) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 || idx == len(payload)-1 {
		return Actor{}, false
	}

	actor := Actor{
		UserID: payload[:idx],
		Role:   model.Role(payload[idx+1:]),
	}
	if !actor.Role.IsValid() {
		return Actor{}, false
	}
	return actor, true
}

func (a *AuthMiddleware) sign(payload string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	signature := mac.Sum(nil)
	return hex.EncodeToString([]byte(payload)) + "." + hex.EncodeToString(signature)
}

func (a *AuthMiddleware) parseCookie(cookieValue string) (Actor, bool) {
	parts := strings.Split(cookieValue, ".")
	if len(parts) != 2 {
		return Actor{}, false
	}

	decoded, err := hex.DecodeString(parts[0])
	if err != nil {
		return Actor{}, false
	}
	payload := string(decoded)

	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(payload))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return Actor{}, false
	}

	return decodeActor(payload)
}

// GetActorFromContext извлекает участника из контекста запроса.
func GetActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}
