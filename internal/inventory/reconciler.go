package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	MessageOutOfStock = "Out of stock"

	defaultPerPage     = 100
	defaultMaxPages    = 10
	defaultConcurrency = 4
)

// StockLookup lists the products of a subcategory, stock included.
type StockLookup interface {
	ProductsBySubCategory(ctx context.Context, subCategoryID string, page, perPage int, search string) (*domain.ProductPage, error)
}

// InventoryError describes one line whose quantity the stock cannot cover.
type InventoryError struct {
	ItemID    string `json:"item_id"`
	Message   string `json:"message"`
	Available int    `json:"available"`
}

// StockSnapshot maps line item id to available quantity as of CapturedAt.
// Items whose stock could not be determined are absent.
type StockSnapshot struct {
	Available  map[string]int `json:"available"`
	CapturedAt time.Time      `json:"captured_at"`
}

type Result struct {
	Snapshot StockSnapshot
	// Errors are in cart order.
	Errors []InventoryError
	// Unknown lists items whose stock could not be determined.
	Unknown []string
	// FailedGroups lists subcategories whose lookup failed.
	FailedGroups []string
}

func (r Result) HasErrors() bool {
	return len(r.Errors) > 0
}

type Options struct {
	PerPage     int
	MaxPages    int
	Concurrency int
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
}

// Reconciler checks cart quantities against catalog stock. It is safe for
// concurrent use and may be shared by all sessions.
type Reconciler struct {
	lookup      StockLookup
	perPage     int
	maxPages    int
	concurrency int
	log         *zap.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	sfg         singleflight.Group
}

func NewReconciler(lookup StockLookup, opts Options) *Reconciler {
	r := &Reconciler{
		lookup:      lookup,
		perPage:     opts.PerPage,
		maxPages:    opts.MaxPages,
		concurrency: opts.Concurrency,
		log:         opts.Logger,
		metrics:     opts.Metrics,
		tracer:      otel.Tracer("github.com/fjod/go_cart/storefront/internal/inventory"),
	}
	if r.perPage <= 0 {
		r.perPage = defaultPerPage
	}
	if r.maxPages <= 0 {
		r.maxPages = defaultMaxPages
	}
	if r.concurrency <= 0 {
		r.concurrency = defaultConcurrency
	}
	if r.log == nil {
		r.log = zap.NewNop()
	}
	return r
}

// Reconcile issues one stock lookup per distinct subcategory among items and
// derives the per-item errors. A failed lookup degrades its items to unknown
// stock. The only error returned is ctx's.
func (r *Reconciler) Reconcile(ctx context.Context, items []domain.LineItem) (Result, error) {
	groups := groupBySubCategory(items)

	ctx, span := r.tracer.Start(ctx, "inventory.Reconcile", trace.WithAttributes(
		attribute.Int("cart.lines", len(items)),
		attribute.Int("inventory.groups", len(groups)),
	))
	defer span.End()

	stock := make([]map[string]int, len(groups))
	failed := make([]bool, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, subID := range groups {
		i, subID := i, subID
		g.Go(func() error {
			available, err := r.lookupGroup(gctx, subID)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.log.Warn("stock lookup failed",
					zap.String("sub_category_id", subID),
					zap.Error(err))
				r.metrics.LookupFailed()
				failed[i] = true
				return nil
			}
			stock[i] = available
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	byGroup := make(map[string]map[string]int, len(groups))
	result := Result{Snapshot: StockSnapshot{
		Available:  make(map[string]int),
		CapturedAt: time.Now(),
	}}
	for i, subID := range groups {
		if failed[i] {
			result.FailedGroups = append(result.FailedGroups, subID)
			continue
		}
		byGroup[subID] = stock[i]
	}

	for _, item := range items {
		available, ok := byGroup[item.SubCategoryID][item.ID]
		if !ok {
			result.Unknown = append(result.Unknown, item.ID)
			continue
		}
		result.Snapshot.Available[item.ID] = available
		if invErr, bad := Check(item, available); bad {
			result.Errors = append(result.Errors, invErr)
		}
	}

	span.SetAttributes(
		attribute.Int("inventory.errors", len(result.Errors)),
		attribute.Int("inventory.unknown", len(result.Unknown)),
	)
	return result, nil
}

// Check compares one line against its available stock.
func Check(item domain.LineItem, available int) (InventoryError, bool) {
	switch {
	case available <= 0:
		return InventoryError{ItemID: item.ID, Message: MessageOutOfStock, Available: 0}, true
	case item.Quantity > available:
		return InventoryError{
			ItemID:    item.ID,
			Message:   fmt.Sprintf("Only %d available", available),
			Available: available,
		}, true
	}
	return InventoryError{}, false
}

// lookupGroup shares identical in-flight lookups between callers. The shared
// call is detached from any single caller's cancellation; each caller still
// stops waiting when its own ctx is done.
func (r *Reconciler) lookupGroup(ctx context.Context, subID string) (map[string]int, error) {
	ch := r.sfg.DoChan(subID, func() (interface{}, error) {
		return r.fetchGroup(context.WithoutCancel(ctx), subID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]int), nil
	}
}

func (r *Reconciler) fetchGroup(ctx context.Context, subID string) (map[string]int, error) {
	available := make(map[string]int)
	for page := 1; page <= r.maxPages; page++ {
		resp, err := r.lookup.ProductsBySubCategory(ctx, subID, page, r.perPage, "")
		if err != nil {
			return nil, fmt.Errorf("lookup %s page %d: %w", subID, page, err)
		}
		for _, p := range resp.Items {
			qty := p.Quantity
			if qty < 0 {
				qty = 0
			}
			available[p.ID] = qty
		}
		if !resp.Pagination.HasNext() {
			return available, nil
		}
	}
	r.log.Debug("stock lookup hit page limit",
		zap.String("sub_category_id", subID),
		zap.Int("max_pages", r.maxPages))
	return available, nil
}

// groupBySubCategory returns the distinct non-empty subcategory ids, sorted.
func groupBySubCategory(items []domain.LineItem) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		if item.SubCategoryID != "" {
			seen[item.SubCategoryID] = struct{}{}
		}
	}
	groups := make([]string, 0, len(seen))
	for id := range seen {
		groups = append(groups, id)
	}
	sort.Strings(groups)
	return groups
}
