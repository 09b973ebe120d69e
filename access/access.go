// Package access implements the row-level visibility predicate and the
// ticket search/listing dispatch (C10, supplemented by SPEC_FULL.md §4.12).
// Grounded on other_examples' afterdarksys-adsops-utils
// internal/models/ticket.go TicketListFilter/SetDefaults/Offset idiom.
package access

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/fieldops/dispatchcore/model"
	"golang.org/x/text/cases"
)

const (
	defaultPerPage = 50
	maxPerPage     = 100
)

var digitsOnly = regexp.MustCompile(`\D+`)

var fold = cases.Fold()

// Scope is the row-level predicate derived from an actor's role: a master or
// junior master sees only their own assigned tickets, everyone with an
// admin-tier role sees everything.
type Scope struct {
	Restricted bool
	ActorID    int64
}

// ScopeFor derives the visibility scope for an actor, per §4.10.
func ScopeFor(actorID int64, actorRole model.Role) Scope {
	switch actorRole {
	case model.RoleMaster, model.RoleJuniorMaster:
		return Scope{Restricted: true, ActorID: actorID}
	default:
		return Scope{Restricted: false}
	}
}

// SearchKind classifies a raw search term per §4.10: an 8-digit string is a
// public ID, any other all-digit string of a different length is an internal
// numeric ID, and anything else is treated as a phone substring.
type SearchKind int

const (
	SearchNone SearchKind = iota
	SearchInternalID
	SearchPublicID
	SearchPhone
)

// ClassifySearch dispatches a raw search term to the field it targets.
func ClassifySearch(term string) (SearchKind, string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return SearchNone, ""
	}
	digits := digitsOnly.ReplaceAllString(term, "")
	if digits != "" && digits == term {
		if len(digits) == 8 {
			return SearchPublicID, digits
		}
		return SearchInternalID, digits
	}
	return SearchPhone, normalizePhoneDigits(term)
}

func normalizePhoneDigits(s string) string {
	return digitsOnly.ReplaceAllString(s, "")
}

// ListFilter is the TicketListFilter-shaped query for list/search, modeled on
// the adsops-utils TicketListFilter/SetDefaults/Offset trio.
type ListFilter struct {
	Statuses    []model.TicketStatus
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	SearchTerm  string
	Page        int
	PerPage     int
}

// SetDefaults normalizes pagination to the spec's defaults/caps: page=1,
// per_page=50, capped at 100.
func (f *ListFilter) SetDefaults() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage <= 0 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
}

// Offset returns the SQL OFFSET for the current page.
func (f ListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}

// Store is the persistence seam access needs for listing/search.
type Store interface {
	ListTickets(ctx context.Context, statuses []model.TicketStatus, assignedExecutorID *int64, createdFrom, createdTo *time.Time, limit, offset int) ([]model.Ticket, error)
	GetTicket(ctx context.Context, id int64) (*model.Ticket, error)
	GetTicketByPublicID(ctx context.Context, publicID string) (*model.Ticket, error)
	ListTicketsByPhone(ctx context.Context, phoneDigits string, limit int) ([]model.Ticket, error)
}

// Filter is the read-side access gate: it composes ScopeFor's row-level
// predicate with the ListFilter's search dispatch before touching storage.
type Filter struct {
	store Store
}

func New(store Store) *Filter {
	return &Filter{store: store}
}

// List returns tickets visible to actorRole/actorID matching f, applying the
// C10 scope restriction and the §4.12 search dispatch.
func (a *Filter) List(ctx context.Context, actorID int64, actorRole model.Role, f ListFilter) ([]model.Ticket, error) {
	f.SetDefaults()
	scope := ScopeFor(actorID, actorRole)

	if f.SearchTerm != "" {
		kind, value := ClassifySearch(f.SearchTerm)
		tickets, err := a.search(ctx, kind, value, f.PerPage)
		if err != nil {
			return nil, err
		}
		return filterByScope(tickets, scope), nil
	}

	var executorID *int64
	if scope.Restricted {
		id := scope.ActorID
		executorID = &id
	}
	tickets, err := a.store.ListTickets(ctx, f.Statuses, executorID, f.CreatedFrom, f.CreatedTo, f.PerPage, f.Offset())
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (a *Filter) search(ctx context.Context, kind SearchKind, value string, limit int) ([]model.Ticket, error) {
	switch kind {
	case SearchPublicID:
		t, err := a.store.GetTicketByPublicID(ctx, value)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		return []model.Ticket{*t}, nil
	case SearchInternalID:
		var id int64
		for _, c := range value {
			id = id*10 + int64(c-'0')
		}
		t, err := a.store.GetTicket(ctx, id)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		return []model.Ticket{*t}, nil
	case SearchPhone:
		return a.store.ListTicketsByPhone(ctx, value, limit)
	default:
		return nil, nil
	}
}

func filterByScope(tickets []model.Ticket, scope Scope) []model.Ticket {
	if !scope.Restricted {
		return tickets
	}
	out := make([]model.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.AssignedExecutorID != nil && *t.AssignedExecutorID == scope.ActorID {
			out = append(out, t)
		}
	}
	return out
}

// NormalizeSearchLabel case-folds a label the same way alias does
// (cases.Fold; diacritics are not folded), for search terms that need to match free-text fields case-insensitively.
func NormalizeSearchLabel(s string) string {
	return fold.String(s)
}
