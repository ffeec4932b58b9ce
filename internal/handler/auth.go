package handler

import (
    "net/http"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/showtime-booking/internal/utils"
)

// SessionHandler issues anonymous booking sessions.  A session is the
// owner of holds; there are no user accounts.
type SessionHandler struct {
    Secret string
    TTL    time.Duration
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(secret string, ttl time.Duration) *SessionHandler {
    if secret == "" {
        panic("empty secret passed to NewSessionHandler")
    }
    return &SessionHandler{Secret: secret, TTL: ttl}
}

// CreateSession handles POST /v1/sessions.  It returns a signed token the
// client sends as "Authorization: Bearer <token>" on hold operations.
func (h *SessionHandler) CreateSession(c echo.Context) error {
    tok, err := utils.NewSessionToken(h.Secret, h.TTL)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "session_id": tok.SessionID,
        "token":      tok.Token,
        "expires_at": tok.Exp,
    })
}
