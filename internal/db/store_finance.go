package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldops/dispatchcore/finance"
	"github.com/fieldops/dispatchcore/model"
	"github.com/shopspring/decimal"
)

func rangeClause(column string, r model.DateRange, args *[]any) string {
	clause := ""
	if r.Start != nil {
		clause += " AND " + column + " >= ?"
		*args = append(*args, *r.Start)
	}
	if r.End != nil {
		clause += " AND " + column + " <= ?"
		*args = append(*args, *r.End)
	}
	return clause
}

func scanSumString(ctx context.Context, db *DB, query string, args ...any) (decimal.Decimal, error) {
	var v sql.NullString
	if err := db.QueryRowContext(ctx, query, args...).Scan(&v); err != nil {
		return decimal.Zero, err
	}
	if !v.Valid || v.String == "" {
		return decimal.Zero, nil
	}
	return parseDecimal(v.String)
}

// MasterMoneyAggregates sums a master's executor earnings, the net profit of
// their closed tickets, and the portion of that net profit already
// transfer-confirmed, translating finance_service.py's master_money base
// query into three explicit SUM aggregates (SQLite has no portable CASE-in-
// SUM shorthand worth fighting for clarity over).
func (s *Store) MasterMoneyAggregates(ctx context.Context, masterID int64, r model.DateRange) (executorEarned, netProfit, confirmedNetProfit decimal.Decimal, err error) {
	args := []any{masterID}
	clause := rangeClause("closed_at", r, &args)

	executorEarned, err = scanSumString(ctx, s.db, `
		SELECT CAST(COALESCE(SUM(CAST(executor_earned AS REAL)), 0) AS TEXT)
		FROM tickets WHERE status = 'CLOSED' AND assigned_executor_id = ?`+clause, args...)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("master money executor earned: %w", err)
	}

	netProfit, err = scanSumString(ctx, s.db, `
		SELECT CAST(COALESCE(SUM(CAST(net_profit AS REAL)), 0) AS TEXT)
		FROM tickets WHERE status = 'CLOSED' AND assigned_executor_id = ?`+clause, args...)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("master money net profit: %w", err)
	}

	confirmedArgs := append([]any{masterID}, args[1:]...)
	confirmedNetProfit, err = scanSumString(ctx, s.db, `
		SELECT CAST(COALESCE(SUM(CAST(net_profit AS REAL)), 0) AS TEXT)
		FROM tickets
		WHERE status = 'CLOSED' AND assigned_executor_id = ? AND transfer_status = 'CONFIRMED'`+clause, confirmedArgs...)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, fmt.Errorf("master money confirmed: %w", err)
	}
	return executorEarned, netProfit, confirmedNetProfit, nil
}

// AdminSalaryAggregate sums what an admin earned from tickets they created.
func (s *Store) AdminSalaryAggregate(ctx context.Context, adminID int64, r model.DateRange) (decimal.Decimal, error) {
	args := []any{adminID}
	clause := rangeClause("closed_at", r, &args)
	sum, err := scanSumString(ctx, s.db, `
		SELECT CAST(COALESCE(SUM(CAST(admin_earned AS REAL)), 0) AS TEXT)
		FROM tickets WHERE status = 'CLOSED' AND created_by_admin_id = ?`+clause, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("admin salary: %w", err)
	}
	return sum, nil
}

// JuniorSalaryAggregate sums what a junior master earned via linked tickets.
func (s *Store) JuniorSalaryAggregate(ctx context.Context, juniorID int64, r model.DateRange) (decimal.Decimal, error) {
	args := []any{juniorID}
	clause := rangeClause("closed_at", r, &args)
	sum, err := scanSumString(ctx, s.db, `
		SELECT CAST(COALESCE(SUM(CAST(junior_earned AS REAL)), 0) AS TEXT)
		FROM tickets WHERE status = 'CLOSED' AND junior_master_id = ?`+clause, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("junior salary: %w", err)
	}
	return sum, nil
}

// ActiveProjectSharePercent returns a user's current active project-share
// percent, or nil if they have none.
func (s *Store) ActiveProjectSharePercent(ctx context.Context, userID int64) (*decimal.Decimal, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `
		SELECT percent FROM project_shares WHERE user_id = ? AND is_active
	`, userID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active project share percent: %w", err)
	}
	d, err := parseDecimal(v)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ProjectNetProfitSum sums net profit across all closed tickets, regardless
// of who executed them, for the project-wide cash share calculation.
func (s *Store) ProjectNetProfitSum(ctx context.Context, r model.DateRange) (decimal.Decimal, error) {
	args := []any{}
	clause := rangeClause("closed_at", r, &args)
	sum, err := scanSumString(ctx, s.db, `
		SELECT CAST(COALESCE(SUM(CAST(net_profit AS REAL)), 0) AS TEXT)
		FROM tickets WHERE status = 'CLOSED'`+clause, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("project net profit sum: %w", err)
	}
	return sum, nil
}

// ProjectSummaryAggregates pulls all the closed-ticket SUM/COUNT columns the
// project summary needs in one round trip.
func (s *Store) ProjectSummaryAggregates(ctx context.Context, r model.DateRange) (finance.ProjectTicketAggregates, error) {
	args := []any{}
	clause := rangeClause("closed_at", r, &args)
	var netProfitShould, netProfitReceived, earnedExecutor, earnedAdmin, earnedJunior, projectTake sql.NullString
	var closedCount, confirmedCount, repeatsCount int

	err := s.db.QueryRowContext(ctx, `
		SELECT
			CAST(COALESCE(SUM(CAST(net_profit AS REAL)), 0) AS TEXT),
			CAST(COALESCE(SUM(CASE WHEN transfer_status = 'CONFIRMED' THEN CAST(net_profit AS REAL) ELSE 0 END), 0) AS TEXT),
			CAST(COALESCE(SUM(CAST(executor_earned AS REAL)), 0) AS TEXT),
			CAST(COALESCE(SUM(CAST(admin_earned AS REAL)), 0) AS TEXT),
			CAST(COALESCE(SUM(CAST(junior_earned AS REAL)), 0) AS TEXT),
			CAST(COALESCE(SUM(CAST(project_take AS REAL)), 0) AS TEXT),
			COUNT(*),
			COALESCE(SUM(CASE WHEN transfer_status = 'CONFIRMED' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_repeat THEN 1 ELSE 0 END), 0)
		FROM tickets WHERE status = 'CLOSED'`+clause, args...).Scan(
		&netProfitShould, &netProfitReceived, &earnedExecutor, &earnedAdmin, &earnedJunior, &projectTake,
		&closedCount, &confirmedCount, &repeatsCount,
	)
	if err != nil {
		return finance.ProjectTicketAggregates{}, fmt.Errorf("project summary aggregates: %w", err)
	}

	parse := func(v sql.NullString) (decimal.Decimal, error) {
		if !v.Valid || v.String == "" {
			return decimal.Zero, nil
		}
		return parseDecimal(v.String)
	}
	var agg finance.ProjectTicketAggregates
	var perr error
	if agg.NetProfitShould, perr = parse(netProfitShould); perr != nil {
		return finance.ProjectTicketAggregates{}, perr
	}
	if agg.NetProfitReceived, perr = parse(netProfitReceived); perr != nil {
		return finance.ProjectTicketAggregates{}, perr
	}
	if agg.EarnedExecutor, perr = parse(earnedExecutor); perr != nil {
		return finance.ProjectTicketAggregates{}, perr
	}
	if agg.EarnedAdmin, perr = parse(earnedAdmin); perr != nil {
		return finance.ProjectTicketAggregates{}, perr
	}
	if agg.EarnedJunior, perr = parse(earnedJunior); perr != nil {
		return finance.ProjectTicketAggregates{}, perr
	}
	if agg.ProjectTakeSum, perr = parse(projectTake); perr != nil {
		return finance.ProjectTicketAggregates{}, perr
	}
	agg.ClosedCount = closedCount
	agg.ConfirmedCount = confirmedCount
	agg.RepeatsCount = repeatsCount
	return agg, nil
}

// ProjectTransactionSum sums manual project transactions by type.
func (s *Store) ProjectTransactionSum(ctx context.Context, txType model.ProjectTransactionType, r model.DateRange) (decimal.Decimal, error) {
	args := []any{string(txType)}
	clause := rangeClause("occurred_at", r, &args)
	sum, err := scanSumString(ctx, s.db, `
		SELECT CAST(COALESCE(SUM(CAST(amount AS REAL)), 0) AS TEXT)
		FROM project_transactions WHERE type = ?`+clause, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("project transaction sum: %w", err)
	}
	return sum, nil
}
