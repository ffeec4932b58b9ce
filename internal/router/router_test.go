package router

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/inventory"
	"github.com/iliyamo/showtime-booking/internal/ledger"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/reservation"
	"github.com/iliyamo/showtime-booking/internal/seatmap"
)

const (
	testSecret        = "router-test-secret"
	testAdminToken    = "admin-token"
	testCallbackToken = "callback-token"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	e      *echo.Echo
	clock  *clock
	ledger *ledger.Memory
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	seats := seatmap.New()
	require.NoError(t, seats.AddShowtime(model.Showtime{
		ID: "s1", Movie: "Kantara Chapter 1", Date: "Oct 5", Time: "10:00 AM",
		Rows: 2, SeatsPerRow: 4, PriceCents: 35000,
	}))

	clk := &clock{now: time.Date(2025, 10, 5, 9, 0, 0, 0, time.UTC)}
	book := ledger.NewMemory()
	holds := reservation.NewManager(seats, reservation.WithClock(clk.Now), reservation.WithLogger(log))
	payments := payment.NewReconciler(holds, seats, book, payment.WithClock(clk.Now), payment.WithLogger(log))

	e := echo.New()
	RegisterRoutes(e)
	RegisterSession(e, handler.NewSessionHandler(testSecret, time.Hour))
	RegisterPublic(e, handler.NewPublicHandler(inventory.NewService(seats)))
	RegisterCustomer(e, handler.NewCustomerHandler(holds, payments), testSecret, nil)
	RegisterPayments(e, handler.NewPaymentHandler(payments), testCallbackToken)
	RegisterAdmin(e, handler.NewAdminHandler(book), testAdminToken)
	return &testServer{e: e, clock: clk, ledger: book}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)

	out := map[string]any{}
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (s *testServer) session(t *testing.T) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, code)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func (s *testServer) hold(t *testing.T, token string, seats ...string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/v1/showtimes/s1/holds", token, map[string]any{"seats": seats})
	require.Equal(t, http.StatusCreated, code, body)
	id, _ := body["hold_id"].(string)
	require.NotEmpty(t, id)
	return id
}

func (s *testServer) seatStates(t *testing.T) map[string]string {
	t.Helper()
	code, body := s.do(t, http.MethodGet, "/v1/showtimes/s1/seats", "", nil)
	require.Equal(t, http.StatusOK, code)
	out := map[string]string{}
	for _, raw := range body["seats"].([]any) {
		seat := raw.(map[string]any)
		out[seat["seat_id"].(string)] = seat["state"].(string)
	}
	return out
}

var customer = map[string]any{
	"customer":       map[string]any{"name": "Asha", "email": "asha@example.com", "phone": "9999999999"},
	"payment_method": "UPI",
}

func TestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.session(t)
	bob := s.session(t)

	code, _ := s.do(t, http.MethodPost, "/v1/showtimes/s1/holds", "", map[string]any{"seats": []string{"A1"}})
	assert.Equal(t, http.StatusUnauthorized, code)

	holdID := s.hold(t, alice, "A1", "A2")

	code, body := s.do(t, http.MethodPost, "/v1/showtimes/s1/holds", bob, map[string]any{"seats": []string{"A2", "A3"}})
	require.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "seat_unavailable", body["error"])
	assert.Equal(t, []any{"A2"}, body["blocked"])

	states := s.seatStates(t)
	assert.Equal(t, "HELD", states["A1"])
	assert.Equal(t, "HELD", states["A2"])
	assert.Equal(t, "AVAILABLE", states["A3"])

	code, _ = s.do(t, http.MethodGet, "/v1/holds/"+holdID, bob, nil)
	assert.Equal(t, http.StatusNotFound, code, "holds are private to their session")

	code, body = s.do(t, http.MethodPost, "/v1/holds/"+holdID+"/payment", alice, customer)
	require.Equal(t, http.StatusAccepted, code, body)
	assert.Equal(t, "PENDING", body["state"])

	code, body = s.do(t, http.MethodDelete, "/v1/holds/"+holdID, alice, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "payment_in_progress", body["error"])

	code, body = s.do(t, http.MethodPost, "/v1/holds/"+holdID+"/confirm", alice, map[string]any{"payment_reference": "pay_1"})
	require.Equal(t, http.StatusOK, code, body)
	booking := body["booking"].(map[string]any)
	assert.Equal(t, []any{"A1", "A2"}, booking["seats"])
	assert.Equal(t, float64(70000), booking["total_price_cents"])
	assert.Equal(t, "UPI", booking["payment_method"])
	assert.Equal(t, "pay_1", booking["payment_reference"])
	firstID := booking["id"]

	code, body = s.do(t, http.MethodPost, "/v1/holds/"+holdID+"/confirm", alice, map[string]any{"payment_reference": "pay_1"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, firstID, body["booking"].(map[string]any)["id"])

	states = s.seatStates(t)
	assert.Equal(t, "SOLD", states["A1"])
	assert.Equal(t, "SOLD", states["A2"])

	code, _ = s.do(t, http.MethodGet, "/api/bookings", "", nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodGet, "/api/bookings", testAdminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = s.do(t, http.MethodDelete, "/api/bookings", testAdminToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["deletedCount"])
	assert.Equal(t, "SOLD", s.seatStates(t)["A1"], "clearing the ledger does not resell seats")
}

func TestExpiredHoldCannotBeConfirmed(t *testing.T) {
	s := newTestServer(t)
	tok := s.session(t)
	holdID := s.hold(t, tok, "B1")

	s.clock.Advance(reservation.DefaultTTL + time.Second)

	code, body := s.do(t, http.MethodPost, "/v1/holds/"+holdID+"/confirm", tok, map[string]any{"payment_method": "card"})
	assert.Equal(t, http.StatusGone, code)
	assert.Equal(t, "hold_expired", body["error"])
	assert.Equal(t, "AVAILABLE", s.seatStates(t)["B1"])

	bookings, err := s.ledger.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestReleaseHold(t *testing.T) {
	s := newTestServer(t)
	tok := s.session(t)
	holdID := s.hold(t, tok, "A4")

	code, body := s.do(t, http.MethodDelete, "/v1/holds/"+holdID, tok, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "RELEASED", body["state"])
	assert.Equal(t, "AVAILABLE", s.seatStates(t)["A4"])

	// the session may hold again once its previous hold is gone
	s.hold(t, tok, "A4")
}

func TestPaymentCallback(t *testing.T) {
	s := newTestServer(t)
	tok := s.session(t)
	holdID := s.hold(t, tok, "B2", "B3")
	code, _ := s.do(t, http.MethodPost, "/v1/holds/"+holdID+"/payment", tok, customer)
	require.Equal(t, http.StatusAccepted, code)

	cb := map[string]any{"hold_id": holdID, "outcome": "success", "reference": "pay_cb"}

	code, _ = s.do(t, http.MethodPost, "/v1/payments/callback", "", cb)
	assert.Equal(t, http.StatusForbidden, code)

	code, body := s.do(t, http.MethodPost, "/v1/payments/callback", testCallbackToken, cb)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["changed"])
	assert.Equal(t, "COMMITTED", body["hold"].(map[string]any)["state"])

	code, body = s.do(t, http.MethodPost, "/v1/payments/callback", testCallbackToken, cb)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["changed"])

	bookings, err := s.ledger.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, bookings, 1)

	other := s.session(t)
	failed := s.hold(t, other, "B4")
	code, body = s.do(t, http.MethodPost, "/v1/payments/callback", testCallbackToken,
		map[string]any{"hold_id": failed, "outcome": "failure"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "RELEASED", body["hold"].(map[string]any)["state"])
	assert.Equal(t, "AVAILABLE", s.seatStates(t)["B4"])
}

func TestPersistFailureReleasesSeats(t *testing.T) {
	s := newTestServer(t)
	tok := s.session(t)
	holdID := s.hold(t, tok, "A3")
	s.ledger.FailNext(1, ledger.ErrInjected)

	code, body := s.do(t, http.MethodPost, "/v1/holds/"+holdID+"/confirm", tok, map[string]any{"payment_method": "card"})
	require.Equal(t, http.StatusBadGateway, code)
	assert.Equal(t, "booking_persist_failed", body["code"])
	assert.Equal(t, holdID, body["hold_id"])
	assert.NotEmpty(t, body["payment_reference"])
	assert.Equal(t, "AVAILABLE", s.seatStates(t)["A3"])
}

func TestPublicBrowse(t *testing.T) {
	s := newTestServer(t)

	code, body := s.do(t, http.MethodGet, "/v1/showtimes", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = s.do(t, http.MethodGet, "/v1/showtimes/s1/seats?view=rows", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["rows"], 2)

	code, body = s.do(t, http.MethodGet, "/v1/showtimes/nope/seats", "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "showtime_not_found", body["error"])

	code, _ = s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body = s.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ready", body["status"])
}
