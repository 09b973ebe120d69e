package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fieldops/dispatchcore/access"
	"github.com/fieldops/dispatchcore/auditlog"
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/finance"
	"github.com/fieldops/dispatchcore/internal/db"
	"github.com/fieldops/dispatchcore/lead"
	"github.com/fieldops/dispatchcore/link"
	"github.com/fieldops/dispatchcore/model"
	"github.com/fieldops/dispatchcore/ticket"
)

func newTestServer(t *testing.T, webhookSecret string) (*Server, *db.Store) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })

	store := db.NewStore(database)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := auditlog.New(store, logger)
	tickets := ticket.New(store, recorder, time.Now)
	leads := lead.New(store, recorder, tickets, time.Now)
	links := link.New(store, recorder, time.Now)
	financeEngine := finance.New(store)
	accessFilter := access.New(store)

	srv := NewServer(store, logger, webhookSecret, tickets, leads, financeEngine, links, accessFilter)
	return srv, store
}

// testMux rebuilds the route table Start() would install, without calling
// ListenAndServe, so handlers can be exercised with httptest directly.
func testMux(s *Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/lead", s.handleLeadWebhook)
	mux.HandleFunc("GET /api/tickets", s.apiListTickets)
	mux.HandleFunc("GET /api/tickets/{id}", s.apiGetTicket)
	mux.HandleFunc("POST /api/tickets/{id}/take", s.apiTakeTicket)
	mux.HandleFunc("POST /api/tickets/{id}/close", s.apiCloseTicket)
	mux.HandleFunc("GET /api/finance/master/{id}", s.apiMasterMoney)
	mux.HandleFunc("GET /api/finance/project-summary", s.apiProjectSummary)
	return mux
}

func TestActorFromRequest(t *testing.T) {
	tests := []struct {
		name     string
		idHeader string
		roleHdr  string
		wantOK   bool
		wantID   int64
	}{
		{"missing both headers", "", "", false, 0},
		{"missing role", "5", "", false, 0},
		{"non-numeric id", "abc", "ADMIN", false, 0},
		{"valid headers", "5", "ADMIN", true, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
			if tt.idHeader != "" {
				r.Header.Set("x-actor-id", tt.idHeader)
			}
			if tt.roleHdr != "" {
				r.Header.Set("x-actor-role", tt.roleHdr)
			}
			id, _, ok := actorFromRequest(r)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && id != tt.wantID {
				t.Errorf("id = %d, want %d", id, tt.wantID)
			}
		})
	}
}

func TestStatusForErr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"denied", domainerr.New(domainerr.Denied, "op", "nope"), http.StatusForbidden},
		{"invalid state", domainerr.New(domainerr.InvalidState, "op", "bad"), http.StatusConflict},
		{"conflict", domainerr.New(domainerr.Conflict, "op", "taken"), http.StatusConflict},
		{"validation", domainerr.New(domainerr.Validation, "op", "bad input"), http.StatusBadRequest},
		{"exhausted", domainerr.New(domainerr.Exhausted, "op", "cap"), http.StatusServiceUnavailable},
		{"infra maps to 500", domainerr.Wrap("op", context.DeadlineExceeded), http.StatusInternalServerError},
		{"plain error maps to 500", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusForErr(tt.err); got != tt.want {
				t.Errorf("statusForErr() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHandleLeadWebhook_SecretNotConfigured(t *testing.T) {
	srv, _ := newTestServer(t, "")
	mux := testMux(srv)

	req := httptest.NewRequest(http.MethodPost, "/webhook/lead", bytes.NewBufferString(`{}`))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestHandleLeadWebhook_WrongSecretIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	mux := testMux(srv)

	req := httptest.NewRequest(http.MethodPost, "/webhook/lead", bytes.NewBufferString(`{}`))
	req.Header.Set("x-webhook-secret", "wrong")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestHandleLeadWebhook_InvalidPhoneIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	mux := testMux(srv)

	body := `{"external_id":"4b6f1c1a-1111-4a2b-8c3d-1234567890ab","phone":"not-a-phone","message":"help"}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/lead", bytes.NewBufferString(body))
	req.Header.Set("x-webhook-secret", "s3cret")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleLeadWebhook_SuccessIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	mux := testMux(srv)

	body := `{"external_id":"4b6f1c1a-1111-4a2b-8c3d-1234567890ab","phone":"+15551234567","message":"screen flickers"}`

	req1 := httptest.NewRequest(http.MethodPost, "/webhook/lead", bytes.NewBufferString(body))
	req1.Header.Set("x-webhook-secret", "s3cret")
	w1 := httptest.NewRecorder()
	mux.ServeHTTP(w1, req1)
	if w1.Code != http.StatusOK {
		t.Fatalf("first webhook status = %d, want 200, body=%s", w1.Code, w1.Body.String())
	}
	var resp1 leadWebhookResponse
	if err := json.Unmarshal(w1.Body.Bytes(), &resp1); err != nil {
		t.Fatal(err)
	}
	if resp1.Duplicate {
		t.Error("first ingest reported duplicate = true, want false")
	}

	req2 := httptest.NewRequest(http.MethodPost, "/webhook/lead", bytes.NewBufferString(body))
	req2.Header.Set("x-webhook-secret", "s3cret")
	w2 := httptest.NewRecorder()
	mux.ServeHTTP(w2, req2)
	var resp2 leadWebhookResponse
	if err := json.Unmarshal(w2.Body.Bytes(), &resp2); err != nil {
		t.Fatal(err)
	}
	if !resp2.Duplicate {
		t.Error("second ingest reported duplicate = false, want true")
	}
}

func TestApiGetTicket_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	mux := testMux(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/999", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestApiGetTicket_InvalidID(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	mux := testMux(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets/not-a-number", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestApiTakeTicket_MissingActorHeadersIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	mux := testMux(srv)

	req := httptest.NewRequest(http.MethodPost, "/api/tickets/1/take", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestApiListTickets_RestrictsMasterToOwnTickets(t *testing.T) {
	srv, store := newTestServer(t, "s3cret")
	mux := testMux(srv)
	ctx := context.Background()

	if err := store.UpsertUser(&model.User{ID: 1, Role: model.RoleAdmin, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertUser(&model.User{ID: 2, Role: model.RoleMaster, IsActive: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertUser(&model.User{ID: 3, Role: model.RoleMaster, IsActive: true}); err != nil {
		t.Fatal(err)
	}

	tk, err := srv.tickets.Create(ctx, ticket.CreateInput{
		ActorID: 1, ActorRole: model.RoleAdmin, Category: model.CategoryPC,
		ClientPhone: "+15551234567",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srv.tickets.Take(ctx, tk.ID, 2, model.RoleMaster); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set("x-actor-id", "3")
	req.Header.Set("x-actor-role", string(model.RoleMaster))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
	var tickets []model.Ticket
	if err := json.Unmarshal(w.Body.Bytes(), &tickets); err != nil {
		t.Fatal(err)
	}
	if len(tickets) != 0 {
		t.Errorf("len(tickets) = %d, want 0 (master 3 did not take this ticket)", len(tickets))
	}
}

func TestApiProjectSummary_ReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t, "s3cret")
	mux := testMux(srv)

	req := httptest.NewRequest(http.MethodGet, "/api/finance/project-summary", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200, body=%s", w.Code, w.Body.String())
	}
}
