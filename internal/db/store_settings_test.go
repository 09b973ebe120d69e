package db

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
)

func TestGetProjectSettings_DefaultsFromMigration(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	s, err := store.GetProjectSettings(ctx)
	if err != nil {
		t.Fatalf("GetProjectSettings() error = %v", err)
	}
	if !s.LargeExpense.Equal(decimal.RequireFromString("10000.00")) {
		t.Errorf("LargeExpense = %s, want 10000.00", s.LargeExpense)
	}
	if s.TransferPendingDays != 3 {
		t.Errorf("TransferPendingDays = %d, want 3", s.TransferPendingDays)
	}
}

func TestSetProjectSetting_UpdatesExistingKey(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	if err := store.SetProjectSetting(ctx, "large_expense", "25000.00"); err != nil {
		t.Fatalf("SetProjectSetting() error = %v", err)
	}

	s, err := store.GetProjectSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !s.LargeExpense.Equal(decimal.RequireFromString("25000.00")) {
		t.Errorf("LargeExpense = %s, want 25000.00 after update", s.LargeExpense)
	}
}

func TestSetProjectSetting_InsertsNewKey(t *testing.T) {
	store := NewStore(openTestDB(t))
	ctx := context.Background()

	if err := store.SetProjectSetting(ctx, "requests_chat_id", "42"); err != nil {
		t.Fatalf("SetProjectSetting() error = %v", err)
	}
	s, err := store.GetProjectSettings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if s.RequestsChatID != 42 {
		t.Errorf("RequestsChatID = %d, want 42", s.RequestsChatID)
	}
}
