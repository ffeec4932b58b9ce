package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/model"
)

func TestWriteError(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"seat unavailable", &model.SeatUnavailableError{ShowtimeID: "s1", Blocked: []model.SeatID{{Row: 0, Number: 2}}}, http.StatusConflict, "seat_unavailable"},
		{"duplicate hold", model.ErrDuplicateHold, http.StatusConflict, "duplicate_hold"},
		{"payment in progress", model.ErrPaymentInProgress, http.StatusConflict, "payment_in_progress"},
		{"resolved", fmt.Errorf("confirm: %w", model.ErrHoldAlreadyResolved), http.StatusConflict, "hold_already_resolved"},
		{"expired", model.ErrHoldExpired, http.StatusGone, "hold_expired"},
		{"hold not found", model.ErrHoldNotFound, http.StatusNotFound, "hold_not_found"},
		{"showtime not found", model.ErrShowtimeNotFound, http.StatusNotFound, "showtime_not_found"},
		{"invalid seats", model.ErrInvalidSeats, http.StatusBadRequest, "invalid_seats"},
		{"invalid payment", model.ErrInvalidPayment, http.StatusBadRequest, "invalid_payment"},
		{"invalid session", model.ErrInvalidSession, http.StatusUnauthorized, "invalid_session"},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable, "request_cancelled"},
		{"persist", &model.PersistError{HoldID: "h1", PaymentReference: "PAY1", Err: errors.New("db down")}, http.StatusBadGateway, "booking_persist_failed"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
			require.NoError(t, writeError(c, tc.err))
			assert.Equal(t, tc.status, rec.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body["error"])
		})
	}
}

func TestWriteErrorSeatUnavailableListsBlockedSeats(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
	err := &model.SeatUnavailableError{ShowtimeID: "s1", Blocked: []model.SeatID{{Row: 1, Number: 3}, {Row: 1, Number: 4}}}
	require.NoError(t, writeError(c, err))

	var body struct {
		Blocked []string `json:"blocked"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"B3", "B4"}, body.Blocked)
}
