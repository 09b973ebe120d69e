// Package payout implements the deterministic close-time split: given a
// ticket's revenue, expense, and the percent shares frozen at close, it
// computes each party's earned amount and the project's take, rounding
// HALF_UP to 2 decimal places and verifying the exact-sum invariant (I2).
package payout

import (
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Result is the frozen payout breakdown for one ticket close.
type Result struct {
	NetProfit      decimal.Decimal
	ExecutorEarned decimal.Decimal
	AdminEarned    decimal.Decimal
	JuniorEarned   decimal.Decimal
	ProjectTake    decimal.Decimal
}

// round applies the spec's round_half_up rule. shopspring/decimal's Round
// rounds half away from zero; since every amount in this domain is
// non-negative, that is equivalent to HALF_UP.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Compute derives the close-time split for a ticket. executorPct and
// adminPct must be present (frozen from the executor's/admin's current
// percent at close time); juniorPct is nil when the ticket has no junior
// master attached. revenue and expense must be non-negative.
//
// The invariant checked is:
//
//	executorEarned + adminEarned + juniorEarned + projectTake == netProfit
//
// after rounding each term, which can only fail from a caller passing
// percents that don't sum to <=100; Compute returns a domainerr.Error with
// Kind Validation in that case rather than silently absorbing the
// remainder into projectTake.
func Compute(revenue, expense, executorPct, adminPct decimal.Decimal, juniorPct *decimal.Decimal) (Result, error) {
	if revenue.IsNegative() || expense.IsNegative() {
		return Result{}, domainerr.New(domainerr.Validation, "payout.compute", "negative_amount")
	}
	if executorPct.IsNegative() || executorPct.GreaterThan(hundred) {
		return Result{}, domainerr.New(domainerr.Validation, "payout.compute", "executor_percent_out_of_range")
	}
	if adminPct.IsNegative() || adminPct.GreaterThan(hundred) {
		return Result{}, domainerr.New(domainerr.Validation, "payout.compute", "admin_percent_out_of_range")
	}

	netProfit := round(revenue.Sub(expense))

	executorShare := round(netProfit.Mul(executorPct).Div(hundred))
	adminShare := round(netProfit.Mul(adminPct).Div(hundred))

	var juniorShare decimal.Decimal
	if juniorPct != nil {
		if juniorPct.IsNegative() || juniorPct.GreaterThan(hundred) {
			return Result{}, domainerr.New(domainerr.Validation, "payout.compute", "junior_percent_out_of_range")
		}
		juniorShare = round(netProfit.Mul(*juniorPct).Div(hundred))
	}

	totalPct := executorPct.Add(adminPct)
	if juniorPct != nil {
		totalPct = totalPct.Add(*juniorPct)
	}
	if totalPct.GreaterThan(hundred) {
		return Result{}, domainerr.New(domainerr.Validation, "payout.compute", "percent_sum_exceeds_100")
	}

	committed := executorShare.Add(adminShare).Add(juniorShare)
	projectTake := round(netProfit.Sub(committed))

	sum := executorShare.Add(adminShare).Add(juniorShare).Add(projectTake)
	if !sum.Equal(netProfit) {
		return Result{}, domainerr.New(domainerr.Validation, "payout.compute", "payout_sum_mismatch")
	}

	return Result{
		NetProfit:      netProfit,
		ExecutorEarned: executorShare,
		AdminEarned:    adminShare,
		JuniorEarned:   juniorShare,
		ProjectTake:    projectTake,
	}, nil
}
