package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fieldops/dispatchcore/access"
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/finance"
	"github.com/fieldops/dispatchcore/model"
	"github.com/fieldops/dispatchcore/ticket"
	"github.com/shopspring/decimal"
)

// actorFromRequest reads the actor identity/role the caller authenticated as
// upstream (the out-of-scope bot/dashboard auth layer); this core only reads
// the two headers it needs to apply C2's gate.
func actorFromRequest(r *http.Request) (int64, model.Role, bool) {
	idStr := r.Header.Get("x-actor-id")
	role := r.Header.Get("x-actor-role")
	if idStr == "" || role == "" {
		return 0, "", false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return id, model.Role(role), true
}

func statusForErr(err error) int {
	var de *domainerr.Error
	if errors.As(err, &de) {
		switch de.Kind {
		case domainerr.Denied:
			return http.StatusForbidden
		case domainerr.InvalidState, domainerr.Conflict:
			return http.StatusConflict
		case domainerr.Validation:
			return http.StatusBadRequest
		case domainerr.Exhausted:
			return http.StatusServiceUnavailable
		}
	}
	return http.StatusInternalServerError
}

func (s *Server) writeErr(w http.ResponseWriter, err error) {
	s.jsonError(w, err.Error(), statusForErr(err))
}

// apiListTickets implements GET /api/tickets, applying the C10 access scope
// and §4.12 search/pagination over the caller's visible tickets.
func (s *Server) apiListTickets(w http.ResponseWriter, r *http.Request) {
	actorID, actorRole, ok := actorFromRequest(r)
	if !ok {
		s.jsonError(w, "missing actor headers", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	f := access.ListFilter{SearchTerm: q.Get("q")}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		f.Page = page
	}
	if perPage, err := strconv.Atoi(q.Get("per_page")); err == nil {
		f.PerPage = perPage
	}

	tickets, err := s.access.List(r.Context(), actorID, actorRole, f)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.jsonResponse(w, tickets)
}

// apiGetTicket implements GET /api/tickets/{id}.
func (s *Server) apiGetTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.jsonError(w, "invalid ticket id", http.StatusBadRequest)
		return
	}
	t, err := s.store.GetTicket(r.Context(), id)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	if t == nil {
		s.jsonError(w, "ticket not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, t)
}

// apiTakeTicket implements POST /api/tickets/{id}/take, the single-taker
// assignment operation (I1).
func (s *Server) apiTakeTicket(w http.ResponseWriter, r *http.Request) {
	actorID, actorRole, ok := actorFromRequest(r)
	if !ok {
		s.jsonError(w, "missing actor headers", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.jsonError(w, "invalid ticket id", http.StatusBadRequest)
		return
	}
	t, err := s.tickets.Take(r.Context(), id, actorID, actorRole)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.jsonResponse(w, t)
}

type closeTicketRequest struct {
	Revenue     string  `json:"revenue"`
	Expense     string  `json:"expense"`
	ExecutorPct string  `json:"executor_percent"`
	AdminPct    string  `json:"admin_percent"`
	JuniorPct   *string `json:"junior_percent,omitempty"`
	Comment     string  `json:"comment"`
}

// apiCloseTicket implements POST /api/tickets/{id}/close, running the C4
// payout computation and C5 ledger append atomically with the status
// transition.
func (s *Server) apiCloseTicket(w http.ResponseWriter, r *http.Request) {
	actorID, actorRole, ok := actorFromRequest(r)
	if !ok {
		s.jsonError(w, "missing actor headers", http.StatusUnauthorized)
		return
	}
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.jsonError(w, "invalid ticket id", http.StatusBadRequest)
		return
	}

	var req closeTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	in, err := parseCloseRequest(req)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := s.tickets.Close(r.Context(), id, closeInputWithActor(in, actorID, actorRole))
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.jsonResponse(w, t)
}

func closeInputWithActor(in ticket.CloseInput, actorID int64, actorRole model.Role) ticket.CloseInput {
	in.ActorID = actorID
	in.ActorRole = actorRole
	return in
}

// apiMasterMoney implements GET /api/finance/master/{id}.
func (s *Server) apiMasterMoney(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.jsonError(w, "invalid master id", http.StatusBadRequest)
		return
	}
	dr := dateRangeFromQuery(r)
	summary, err := s.finance.MasterMoney(r.Context(), id, dr)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.jsonResponse(w, summary)
}

// apiProjectSummary implements GET /api/finance/project-summary.
func (s *Server) apiProjectSummary(w http.ResponseWriter, r *http.Request) {
	dr := dateRangeFromQuery(r)
	summary, err := s.finance.ProjectSummary(r.Context(), dr)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.jsonResponse(w, summary)
}

func dateRangeFromQuery(r *http.Request) model.DateRange {
	q := r.URL.Query()
	return finance.BuildRange(parseDateParam(q.Get("start")), parseDateParam(q.Get("end")))
}

func parseDateParam(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil
	}
	return &t
}

func parseCloseRequest(req closeTicketRequest) (ticket.CloseInput, error) {
	revenue, err := decimal.NewFromString(req.Revenue)
	if err != nil {
		return ticket.CloseInput{}, errors.New("invalid revenue")
	}
	expense, err := decimal.NewFromString(req.Expense)
	if err != nil {
		return ticket.CloseInput{}, errors.New("invalid expense")
	}
	executorPct, err := decimal.NewFromString(req.ExecutorPct)
	if err != nil {
		return ticket.CloseInput{}, errors.New("invalid executor_percent")
	}
	adminPct, err := decimal.NewFromString(req.AdminPct)
	if err != nil {
		return ticket.CloseInput{}, errors.New("invalid admin_percent")
	}
	var juniorPct *decimal.Decimal
	if req.JuniorPct != nil {
		jp, err := decimal.NewFromString(*req.JuniorPct)
		if err != nil {
			return ticket.CloseInput{}, errors.New("invalid junior_percent")
		}
		juniorPct = &jp
	}
	return ticket.CloseInput{
		Revenue:     revenue,
		Expense:     expense,
		ExecutorPct: executorPct,
		AdminPct:    adminPct,
		JuniorPct:   juniorPct,
		Comment:     req.Comment,
	}, nil
}
