package db

import (
	"context"
	"testing"

	"github.com/fieldops/dispatchcore/model"
)

func mustSeedTicketUser(t *testing.T, store *Store, id int64, role model.Role) {
	t.Helper()
	if err := store.UpsertUser(&model.User{ID: id, Role: role, IsActive: true}); err != nil {
		t.Fatalf("UpsertUser(%d) error = %v", id, err)
	}
}

func mustInsertTicket(t *testing.T, store *Store, publicID string, executorID *int64, clientPhone string) int64 {
	t.Helper()
	tx, err := store.BeginTx()
	if err != nil {
		t.Fatal(err)
	}
	id, err := store.CreateTicket(context.Background(), tx, &model.Ticket{
		PublicID:           publicID,
		Status:             model.StatusReadyForWork,
		Category:           model.CategoryPC,
		ClientPhone:        clientPhone,
		CreatedByAdminID:   1,
		AssignedExecutorID: executorID,
	})
	if err != nil {
		t.Fatalf("CreateTicket(%s) error = %v", publicID, err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
	return id
}

func TestGetTicketByPublicID_FoundAndNotFound(t *testing.T) {
	store := NewStore(openTestDB(t))
	mustSeedTicketUser(t, store, 1, model.RoleAdmin)
	mustInsertTicket(t, store, "31072601", nil, "15551234567")

	got, err := store.GetTicketByPublicID(context.Background(), "31072601")
	if err != nil {
		t.Fatalf("GetTicketByPublicID() error = %v", err)
	}
	if got == nil || got.PublicID != "31072601" {
		t.Fatalf("got = %+v, want PublicID=31072601", got)
	}

	missing, err := store.GetTicketByPublicID(context.Background(), "99999999")
	if err != nil {
		t.Fatalf("GetTicketByPublicID() error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetTicketByPublicID(missing) = %+v, want nil", missing)
	}
}

func TestListTicketsByPhone_MatchesSubstring(t *testing.T) {
	store := NewStore(openTestDB(t))
	mustSeedTicketUser(t, store, 1, model.RoleAdmin)
	mustInsertTicket(t, store, "31072601", nil, "15551234567")
	mustInsertTicket(t, store, "31072602", nil, "15559998888")

	results, err := store.ListTicketsByPhone(context.Background(), "1234567", 10)
	if err != nil {
		t.Fatalf("ListTicketsByPhone() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if results[0].PublicID != "31072601" {
		t.Errorf("PublicID = %q, want 31072601", results[0].PublicID)
	}
}

func TestListTickets_FiltersByStatusAndExecutor(t *testing.T) {
	store := NewStore(openTestDB(t))
	mustSeedTicketUser(t, store, 1, model.RoleAdmin)
	executorA := int64(2)
	executorB := int64(3)
	mustSeedTicketUser(t, store, executorA, model.RoleMaster)
	mustSeedTicketUser(t, store, executorB, model.RoleMaster)

	mustInsertTicket(t, store, "31072601", &executorA, "15551111111")
	mustInsertTicket(t, store, "31072602", &executorB, "15552222222")

	resultsAll, err := store.ListTickets(context.Background(), nil, nil, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListTickets() error = %v", err)
	}
	if len(resultsAll) != 2 {
		t.Fatalf("len(resultsAll) = %d, want 2", len(resultsAll))
	}

	resultsA, err := store.ListTickets(context.Background(), nil, &executorA, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListTickets(executorA) error = %v", err)
	}
	if len(resultsA) != 1 || resultsA[0].PublicID != "31072601" {
		t.Fatalf("resultsA = %+v, want just 31072601", resultsA)
	}

	resultsByStatus, err := store.ListTickets(context.Background(), []model.TicketStatus{model.StatusClosed}, nil, nil, nil, 10, 0)
	if err != nil {
		t.Fatalf("ListTickets(CLOSED) error = %v", err)
	}
	if len(resultsByStatus) != 0 {
		t.Errorf("len(resultsByStatus) = %d, want 0 (no closed tickets seeded)", len(resultsByStatus))
	}
}

func TestListTickets_Pagination(t *testing.T) {
	store := NewStore(openTestDB(t))
	mustSeedTicketUser(t, store, 1, model.RoleAdmin)
	for i := 0; i < 5; i++ {
		mustInsertTicket(t, store, "3107260"+string(rune('1'+i)), nil, "15550000000")
	}

	page1, err := store.ListTickets(context.Background(), nil, nil, nil, nil, 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(page1) != 2 {
		t.Fatalf("len(page1) = %d, want 2", len(page1))
	}

	page2, err := store.ListTickets(context.Background(), nil, nil, nil, nil, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(page2) != 2 {
		t.Fatalf("len(page2) = %d, want 2", len(page2))
	}
	if page1[0].PublicID == page2[0].PublicID {
		t.Error("page1 and page2 returned overlapping rows")
	}
}
