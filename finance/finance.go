// Package finance implements the period-scoped money aggregates (C8):
// what a master/junior/admin has earned, what is still pending transfer,
// and the whole-project cash position. Grounded almost directly on
// original_source's finance_service.py (master_money / admin_salary /
// junior_salary / project_summary), translated from SQLAlchemy aggregate
// queries to plain SQL.
package finance

import (
	"context"
	"time"

	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/model"
	"github.com/shopspring/decimal"
)

// Store is the persistence seam finance needs; every method is a read-only
// aggregate over closed tickets and manual project transactions.
type Store interface {
	MasterMoneyAggregates(ctx context.Context, masterID int64, r model.DateRange) (executorEarned, netProfit, confirmedNetProfit decimal.Decimal, err error)
	AdminSalaryAggregate(ctx context.Context, adminID int64, r model.DateRange) (decimal.Decimal, error)
	JuniorSalaryAggregate(ctx context.Context, juniorID int64, r model.DateRange) (decimal.Decimal, error)
	ActiveProjectSharePercent(ctx context.Context, userID int64) (*decimal.Decimal, error)
	ProjectNetProfitSum(ctx context.Context, r model.DateRange) (decimal.Decimal, error)
	ProjectSummaryAggregates(ctx context.Context, r model.DateRange) (ProjectTicketAggregates, error)
	ProjectTransactionSum(ctx context.Context, txType model.ProjectTransactionType, r model.DateRange) (decimal.Decimal, error)
}

// ProjectTicketAggregates bundles the closed-ticket SUM/COUNT columns the
// project summary needs in one round trip, mirroring the single multi-column
// SELECT in project_summary.
type ProjectTicketAggregates struct {
	NetProfitShould  decimal.Decimal
	NetProfitReceived decimal.Decimal
	EarnedExecutor   decimal.Decimal
	EarnedAdmin      decimal.Decimal
	EarnedJunior     decimal.Decimal
	ProjectTakeSum   decimal.Decimal
	ClosedCount      int
	ConfirmedCount   int
	RepeatsCount     int
}

// Engine computes the finance aggregates.
type Engine struct {
	store Store
}

func New(store Store) *Engine {
	return &Engine{store: store}
}

// BuildRange converts inclusive calendar dates to a DateRange spanning the
// full days, matching build_range's datetime.min/max.time() combination.
func BuildRange(start, end *time.Time) model.DateRange {
	var r model.DateRange
	if start != nil {
		s := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
		r.Start = &s
	}
	if end != nil {
		e := time.Date(end.Year(), end.Month(), end.Day(), 23, 59, 59, 999999999, end.Location())
		r.End = &e
	}
	return r
}

func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// MasterMoneySummary is the master_money dict shape.
type MasterMoneySummary struct {
	Earned          decimal.Decimal
	NetProfit       decimal.Decimal
	Confirmed       decimal.Decimal
	Pending         decimal.Decimal
	CashShareAmount decimal.Decimal
}

// MasterMoney reports what a master has earned as executor, plus their
// admin-created-ticket earnings and project cash-share, for tickets closed
// in the given range.
func (e *Engine) MasterMoney(ctx context.Context, masterID int64, r model.DateRange) (MasterMoneySummary, error) {
	earnedExecutor, netProfit, confirmed, err := e.store.MasterMoneyAggregates(ctx, masterID, r)
	if err != nil {
		return MasterMoneySummary{}, domainerr.Wrap("finance.master_money", err)
	}
	earnedAdmin, err := e.store.AdminSalaryAggregate(ctx, masterID, r)
	if err != nil {
		return MasterMoneySummary{}, domainerr.Wrap("finance.master_money", err)
	}
	sharePercent, err := e.store.ActiveProjectSharePercent(ctx, masterID)
	if err != nil {
		return MasterMoneySummary{}, domainerr.Wrap("finance.master_money", err)
	}
	totalNetCash, err := e.store.ProjectNetProfitSum(ctx, r)
	if err != nil {
		return MasterMoneySummary{}, domainerr.Wrap("finance.master_money", err)
	}

	cashShare := decimal.Zero
	if sharePercent != nil {
		cashShare = round(totalNetCash.Mul(*sharePercent).Div(decimal.NewFromInt(100)))
	}

	earned := earnedExecutor.Add(earnedAdmin).Add(cashShare)
	pending := netProfit.Sub(confirmed)
	if pending.IsNegative() {
		pending = decimal.Zero
	}

	return MasterMoneySummary{
		Earned:          earned,
		NetProfit:       netProfit,
		Confirmed:       confirmed,
		Pending:         pending,
		CashShareAmount: cashShare,
	}, nil
}

// AdminSalary reports what an admin earned from tickets they created and
// closed, for the given range.
func (e *Engine) AdminSalary(ctx context.Context, adminID int64, r model.DateRange) (decimal.Decimal, error) {
	sum, err := e.store.AdminSalaryAggregate(ctx, adminID, r)
	if err != nil {
		return decimal.Zero, domainerr.Wrap("finance.admin_salary", err)
	}
	return sum, nil
}

// JuniorSalary reports what a junior master earned via their linked tickets,
// for the given range.
func (e *Engine) JuniorSalary(ctx context.Context, juniorID int64, r model.DateRange) (decimal.Decimal, error) {
	sum, err := e.store.JuniorSalaryAggregate(ctx, juniorID, r)
	if err != nil {
		return decimal.Zero, domainerr.Wrap("finance.junior_salary", err)
	}
	return sum, nil
}

// ProjectSummary is the whole-project cash-position report.
type ProjectSummary struct {
	TicketsNetProfitShould   decimal.Decimal
	TicketsNetProfitReceived decimal.Decimal
	ManualIncomeSum          decimal.Decimal
	ManualExpenseSum         decimal.Decimal
	ProjectNetCashShould     decimal.Decimal
	ProjectNetCashReceived   decimal.Decimal
	EarnedExecutor           decimal.Decimal
	EarnedAdmin              decimal.Decimal
	EarnedJunior             decimal.Decimal
	ProjectTakeSum           decimal.Decimal
	ClosedCount              int
	ConfirmedCount           int
	RepeatsCount             int
}

// ProjectSummary aggregates closed-ticket net profit against manual project
// transactions to report the project's overall cash position.
func (e *Engine) ProjectSummary(ctx context.Context, r model.DateRange) (ProjectSummary, error) {
	agg, err := e.store.ProjectSummaryAggregates(ctx, r)
	if err != nil {
		return ProjectSummary{}, domainerr.Wrap("finance.project_summary", err)
	}
	income, err := e.store.ProjectTransactionSum(ctx, model.ProjectTxIncome, r)
	if err != nil {
		return ProjectSummary{}, domainerr.Wrap("finance.project_summary", err)
	}
	expense, err := e.store.ProjectTransactionSum(ctx, model.ProjectTxExpense, r)
	if err != nil {
		return ProjectSummary{}, domainerr.Wrap("finance.project_summary", err)
	}

	netCashShould := agg.NetProfitShould.Add(income).Sub(expense)
	netCashReceived := agg.NetProfitReceived.Add(income).Sub(expense)

	return ProjectSummary{
		TicketsNetProfitShould:   agg.NetProfitShould,
		TicketsNetProfitReceived: agg.NetProfitReceived,
		ManualIncomeSum:          income,
		ManualExpenseSum:         expense,
		ProjectNetCashShould:     netCashShould,
		ProjectNetCashReceived:   netCashReceived,
		EarnedExecutor:           agg.EarnedExecutor,
		EarnedAdmin:              agg.EarnedAdmin,
		EarnedJunior:             agg.EarnedJunior,
		ProjectTakeSum:           agg.ProjectTakeSum,
		ClosedCount:              agg.ClosedCount,
		ConfirmedCount:           agg.ConfirmedCount,
		RepeatsCount:             agg.RepeatsCount,
	}, nil
}
