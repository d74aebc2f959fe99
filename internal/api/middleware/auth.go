package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"cyclebot/pkg/crypto"
	"cyclebot/pkg/utils"
)

// TokenAuth - middleware проверки Bearer токена управления
//
// Назначение:
// Защищает API управления движком. Токен хранится в конфигурации только
// в виде bcrypt-хеша (SECURITY_API_TOKEN_HASH), сам токен знает оператор.
//
// Функции:
// - Извлечение токена из заголовка Authorization: Bearer <token>
// - Проверка токена по bcrypt-хешу
// - Запоминание последнего принятого токена (bcrypt дорогой, проверка на каждый запрос)
// - 401 Unauthorized при отсутствии или неверном токене
//
// Пустой хеш отключает проверку (локальный запуск).
type TokenAuth struct {
	hash string

	mu       sync.Mutex
	accepted [sha256.Size]byte
	hasToken bool
}

// NewTokenAuth создает проверку по bcrypt-хешу токена
func NewTokenAuth(hash string) *TokenAuth {
	return &TokenAuth{hash: hash}
}

// Middleware возвращает http middleware
func (a *TokenAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.hash == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="cyclebot"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		if !a.verify(token) {
			utils.L().Warn("Rejected API token",
				utils.String("path", r.URL.Path),
				utils.String("remote", r.RemoteAddr))
			w.Header().Set("WWW-Authenticate", `Bearer realm="cyclebot", error="invalid_token"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *TokenAuth) verify(token string) bool {
	sum := sha256.Sum256([]byte(token))

	a.mu.Lock()
	cached := a.hasToken && subtle.ConstantTimeCompare(sum[:], a.accepted[:]) == 1
	a.mu.Unlock()
	if cached {
		return true
	}

	if err := crypto.VerifyToken(token, a.hash); err != nil {
		return false
	}

	a.mu.Lock()
	a.accepted = sum
	a.hasToken = true
	a.mu.Unlock()
	return true
}

// bearerToken: заголовок Authorization, для WebSocket из браузера - access_token в query
func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		if t := r.URL.Query().Get("access_token"); t != "" && r.Header.Get("Upgrade") != "" {
			return t, true
		}
		return "", false
	}
	token := strings.TrimSpace(h[len(prefix):])
	return token, token != ""
}
