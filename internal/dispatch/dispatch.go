// Package dispatch turns one queued order event into the CRM calls for its stage.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"crmsync/internal/crm"
	"crmsync/internal/mapping"
	"crmsync/internal/model"
	"crmsync/internal/store"
)

var (
	ErrUnknownStage   = errors.New("unknown order stage")
	ErrMissingLinkage = errors.New("order not linked to crm")
	ErrPaymentFailed  = errors.New("payment creation failed")
)

// Gateway is the subset of the CRM client the dispatcher needs.
type Gateway interface {
	CreatePipelineCard(ctx context.Context, req crm.PipelineCardRequest) (crm.PipelineCard, error)
	CreateOrder(ctx context.Context, req crm.OrderRequest) (crm.Order, error)
	CreatePayment(ctx context.Context, orderID string, req crm.PaymentRequest) (crm.Payment, error)
	UpdateOrder(ctx context.Context, orderID string, req crm.OrderUpdate) (crm.Order, error)
}

// PaymentPolicy decides what a failed payment call does to a stage 1 dispatch.
type PaymentPolicy string

const (
	// PaymentIgnore logs the failure; the order stays created and the dispatch succeeds.
	PaymentIgnore PaymentPolicy = "ignore"
	// PaymentRetry fails the dispatch. The retry creates the CRM order again.
	PaymentRetry PaymentPolicy = "retry"
)

func (p PaymentPolicy) Valid() bool { return p == PaymentIgnore || p == PaymentRetry }

type Options struct {
	Mapping           mapping.Options
	ShippedStatusID   int64
	DeliveredStatusID int64
	PaymentMethods    mapping.PaymentMethods
	PaymentPolicy     PaymentPolicy
}

// Result describes what a dispatch did in the CRM.
type Result struct {
	Stage    model.Stage
	CRMID    string
	Response any
	// Payment is set when a payment was created for a paid stage 1 order.
	Payment *crm.Payment
	// PaymentErr is kept even when the policy ignores it.
	PaymentErr error
}

type Dispatcher struct {
	gw    Gateway
	links store.Linkage
	opts  Options
	log   *slog.Logger
}

func New(gw Gateway, links store.Linkage, opts Options, log *slog.Logger) *Dispatcher {
	if opts.PaymentMethods == nil { opts.PaymentMethods = mapping.DefaultPaymentMethods() }
	if !opts.PaymentPolicy.Valid() { opts.PaymentPolicy = PaymentIgnore }
	if log == nil { log = slog.Default() }
	return &Dispatcher{gw: gw, links: links, opts: opts, log: log}
}

type handler func(ctx context.Context, o model.OrderEvent) (Result, error)

// handler returns the function for one stage. Adding a Stage means adding a case here.
func (d *Dispatcher) handler(s model.Stage) (handler, bool) {
	switch s {
	case model.StageLead:
		return d.lead, true
	case model.StageNew:
		return d.newOrder, true
	case model.StageShipped:
		return d.statusUpdate(d.opts.ShippedStatusID), true
	case model.StageDelivered:
		return d.statusUpdate(d.opts.DeliveredStatusID), true
	}
	return nil, false
}

// Dispatch performs the CRM calls for o. It never touches retry state.
func (d *Dispatcher) Dispatch(ctx context.Context, o model.OrderEvent) (Result, error) {
	h, ok := d.handler(o.OrderStatus)
	if !ok { return Result{Stage: o.OrderStatus}, fmt.Errorf("%w: %d", ErrUnknownStage, int(o.OrderStatus)) }
	res, err := h(ctx, o)
	res.Stage = o.OrderStatus
	return res, err
}

func (d *Dispatcher) lead(ctx context.Context, o model.OrderEvent) (Result, error) {
	card, err := d.gw.CreatePipelineCard(ctx, mapping.PipelineCardRequest(o, d.opts.Mapping))
	if err != nil { return Result{}, fmt.Errorf("create pipeline card: %w", err) }
	return Result{CRMID: strconv.FormatInt(card.ID, 10), Response: card}, nil
}

func (d *Dispatcher) newOrder(ctx context.Context, o model.OrderEvent) (Result, error) {
	created, err := d.gw.CreateOrder(ctx, mapping.OrderRequest(o, d.opts.Mapping))
	if err != nil { return Result{}, fmt.Errorf("create order: %w", err) }
	if created.ID == 0 { return Result{Response: created}, errors.New("create order: crm returned no id") }
	crmID := strconv.FormatInt(created.ID, 10)
	res := Result{CRMID: crmID, Response: created}
	// duplicates are not detected; a second stage 1 event overwrites the linkage
	if err := d.links.Put(ctx, o.ExternalOrderID, crmID); err != nil {
		return res, fmt.Errorf("store linkage: %w", err)
	}
	if !o.Paid() { return res, nil }

	p, err := d.gw.CreatePayment(ctx, crmID, mapping.PaymentRequest(o, d.opts.PaymentMethods))
	if err != nil {
		res.PaymentErr = err
		d.log.Error("payment creation failed", "order_id", o.ExternalOrderID, "crm_id", crmID, "policy", string(d.opts.PaymentPolicy), "err", err)
		if d.opts.PaymentPolicy == PaymentRetry {
			return res, fmt.Errorf("%w: crm order %s: %v", ErrPaymentFailed, crmID, err)
		}
		return res, nil
	}
	res.Payment = &p
	return res, nil
}

func (d *Dispatcher) statusUpdate(statusID int64) handler {
	return func(ctx context.Context, o model.OrderEvent) (Result, error) {
		crmID, err := d.links.Get(ctx, o.ExternalOrderID)
		if errors.Is(err, store.ErrNoLinkage) {
			return Result{}, fmt.Errorf("%w: %s", ErrMissingLinkage, o.ExternalOrderID)
		}
		if err != nil { return Result{}, fmt.Errorf("load linkage: %w", err) }
		upd := crm.OrderUpdate{StatusID: statusID, ManagerComment: o.StatusDescription}
		updated, err := d.gw.UpdateOrder(ctx, crmID, upd)
		if err != nil { return Result{CRMID: crmID}, fmt.Errorf("update order %s: %w", crmID, err) }
		return Result{CRMID: crmID, Response: updated}, nil
	}
}
