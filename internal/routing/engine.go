package routing

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"ticketrouter/internal/tracker"
)

// ReferenceData is the read side of the tracker the engine depends on.
// Find methods return (nil, nil) when no record matches; an error means the
// lookup itself failed, which the engine records but never escalates.
type ReferenceData interface {
	FindCustomer(ctx context.Context, customerKey string) (*tracker.Task, error)
	FindUnit(ctx context.Context, unitKey string) (*tracker.Task, error)
	FindMarketOwnership(ctx context.Context, market string) (*tracker.Task, error)
}

// Engine computes routing decisions. Given a fixed reference-data snapshot
// the same ticket always produces the same decision.
type Engine struct {
	refdata    ReferenceData
	logger     *slog.Logger
	fallbackCX int64
}

// NewEngine builds a routing engine. fallbackCX of zero disables fallback
// CX assignment; the escalation tag is applied regardless.
func NewEngine(refdata ReferenceData, logger *slog.Logger, fallbackCX int64) *Engine {
	return &Engine{
		refdata:    refdata,
		logger:     logger,
		fallbackCX: fallbackCX,
	}
}

// Route computes CX and Ops owners for a ticket. Lookup failures are
// accumulated on the decision and surfaced as advisory tags; Route itself
// never fails.
func (e *Engine) Route(ctx context.Context, task *tracker.Task) Decision {
	decision := Decision{TaskID: task.ID}

	customerKey, _ := task.StringValue(tracker.FieldCustomerKey)
	unitKey, _ := task.StringValue(tracker.FieldUnitKey)
	decision.CustomerKey = customerKey

	// Customer and unit lookups are independent; fetch both at once.
	var (
		customer, unit       *tracker.Task
		customerErr, unitErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	if customerKey != "" {
		g.Go(func() error {
			customer, customerErr = e.refdata.FindCustomer(gctx, customerKey)
			return nil
		})
	}
	if unitKey != "" {
		g.Go(func() error {
			unit, unitErr = e.refdata.FindUnit(gctx, unitKey)
			return nil
		})
	}
	_ = g.Wait()

	e.resolveCX(&decision, customerKey, customer, customerErr)
	e.resolveMarket(&decision, task, unitKey, unit, unitErr)
	e.resolveOps(ctx, &decision)

	e.logger.InfoContext(ctx, "routing decision",
		"task_id", decision.TaskID,
		"customer_key", decision.CustomerKey,
		"market", decision.Market,
		"cx_owner", decision.CXOwner,
		"ops_owner", decision.OpsOwner,
		"source_cx", decision.Source.CX,
		"source_ops", decision.Source.Ops,
		"tags", decision.Tags,
		"error_count", len(decision.Errors),
	)

	return decision
}

func (e *Engine) resolveCX(d *Decision, customerKey string, customer *tracker.Task, lookupErr error) {
	switch {
	case customerKey == "":
		e.fallbackCXOwner(d, "no customer_key provided")
	case lookupErr != nil:
		e.fallbackCXOwner(d, fmt.Sprintf("customer lookup failed: %s", lookupErr))
	case customer == nil:
		e.fallbackCXOwner(d, fmt.Sprintf("customer %s not found", customerKey))
	default:
		owner := customerOwner(customer)
		if owner == 0 {
			e.fallbackCXOwner(d, fmt.Sprintf("customer %s has no assigned owner", customerKey))
			return
		}
		d.CXOwner = owner
		if isVIP(customer) {
			// VIP customers keep their dedicated owner regardless of
			// any other rule.
			d.Source.CX = SourceCustomerAssignee
		} else {
			d.Source.CX = SourceAutoRouting
		}
	}
}

// fallbackCXOwner routes a ticket nobody could resolve: assign the
// configured fallback owner if one is set, tag for human follow-up, and
// record why.
func (e *Engine) fallbackCXOwner(d *Decision, reason string) {
	if e.fallbackCX != 0 {
		d.CXOwner = e.fallbackCX
	}
	d.Source.CX = SourceUnresolvedCustomer
	d.addTag(TagNeedsCXRouting)
	d.addError(StageCX, reason)
}

func (e *Engine) resolveMarket(d *Decision, task *tracker.Task, unitKey string, unit *tracker.Task, lookupErr error) {
	if unitKey != "" {
		switch {
		case lookupErr != nil:
			d.addError(StageMarket, fmt.Sprintf("unit lookup failed: %s", lookupErr))
		case unit == nil:
			d.addError(StageMarket, fmt.Sprintf("unit %s not found", unitKey))
		default:
			if market, ok := unit.StringValue(tracker.FieldMarket); ok {
				d.Market = market
			}
		}
	}

	// Tickets can carry a market directly when no unit applies.
	if d.Market == "" {
		if market, ok := task.StringValue(tracker.FieldMarket); ok {
			d.Market = market
		}
	}
}

func (e *Engine) resolveOps(ctx context.Context, d *Decision) {
	if d.Market == "" {
		// Ops routing without a market is never attempted.
		d.Source.Ops = SourceUnresolvedMarket
		d.addTag(TagNeedsOpsRouting)
		d.addError(StageOps, "no market resolved for ops routing")
		return
	}

	ownership, err := e.refdata.FindMarketOwnership(ctx, d.Market)
	switch {
	case err != nil:
		d.Source.Ops = SourceUnresolvedMarket
		d.addTag(TagNeedsOpsRouting)
		d.addError(StageOps, fmt.Sprintf("market ownership lookup failed: %s", err))
		return
	case ownership == nil:
		d.Source.Ops = SourceUnresolvedMarket
		d.addTag(TagNeedsOpsRouting)
		d.addError(StageOps, fmt.Sprintf("market ownership for %s not found", d.Market))
		return
	}

	if primary := ownership.UserValues(tracker.FieldPrimaryOpsOwner); len(primary) > 0 {
		d.OpsOwner = primary[0].ID
		d.Source.Ops = SourceMarketPrimary
		return
	}
	if backup := ownership.UserValues(tracker.FieldBackupOpsOwner); len(backup) > 0 {
		d.OpsOwner = backup[0].ID
		d.Source.Ops = SourceMarketBackup
		return
	}

	d.Source.Ops = SourceUnresolvedMarket
	d.addTag(TagNeedsOpsRouting)
	d.addError(StageOps, fmt.Sprintf("market %s has no primary or backup ops owner", d.Market))
}

// customerOwner returns the customer's assigned owner, or zero when the
// record carries no assignees.
func customerOwner(customer *tracker.Task) int64 {
	if len(customer.Assignees) == 0 {
		return 0
	}
	return customer.Assignees[0].ID
}

// isVIP reads the customer's VIP flag. The tracker stores it as a label
// field ("VIP") in older collections and a checkbox ("true") in newer ones.
func isVIP(customer *tracker.Task) bool {
	v, ok := customer.StringValue(tracker.FieldVIP)
	if !ok {
		return false
	}
	return v == "VIP" || v == "true"
}
