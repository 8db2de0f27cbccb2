package httpserver

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/streamrelay/internal/platform/config"
	apperrors "github.com/pscheid92/streamrelay/internal/platform/errors"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionKeyAccountID = "account_id"
	contextKeyAccountID = "accountID"

	sessionMaxAge = 7 * 24 * 60 * 60
)

// newSessionStore builds a cookie store whose signing and encryption keys are derived
// from SESSION_SECRET. Sessions are created by the login flow; this service only reads them.
func newSessionStore(cfg *config.Config) (*sessions.CookieStore, error) {
	hashKey, err := deriveKey(cfg.SessionSecret, "session-hash", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(cfg.SessionSecret, "session-block", 32)
	if err != nil {
		return nil, err
	}

	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, fmt.Errorf("failed to derive %s key: %w", info, err)
	}
	return key, nil
}

// requireAccount rejects requests without a session naming a linked account.
func (s *Server) requireAccount(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), s.config.SessionName)
		if err != nil {
			return apperrors.UnauthorizedError("invalid session", err)
		}

		accountID, ok := session.Values[sessionKeyAccountID].(string)
		if !ok || accountID == "" {
			return apperrors.UnauthorizedError("login required", nil)
		}

		c.Set(contextKeyAccountID, accountID)
		return next(c)
	}
}
