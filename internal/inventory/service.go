package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ReadRepository abstracts the read paths used by Service.
type ReadRepository interface {
	TransactionReader
	ListStock(ctx context.Context, filter StockFilter) (StockPage, error)
	ListStockByProduct(ctx context.Context, companyID, productID int64) ([]Stock, error)
	LedgerByProvider(ctx context.Context, companyID, productID int64) (map[int64]int64, error)
	ListStockedProducts(ctx context.Context, companyID int64) ([]ProductKey, error)
}

// Service serves stock listings, ledger queries and reconciliation.
type Service struct {
	repo     ReadRepository
	cache    *Cache
	recorder *Recorder
	logger   *slog.Logger
	group    singleflight.Group
}

// NewService builds Service. cache may be nil.
func NewService(repo ReadRepository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, recorder: NewRecorder(), logger: logger}
}

// ListStock returns a page of stock rows, served from cache when fresh.
func (s *Service) ListStock(ctx context.Context, filter StockFilter) (StockPage, error) {
	if filter.CompanyID == 0 {
		return StockPage{}, shared.ErrUnauthorized
	}
	filter.Page = shared.NormalizePage(filter.Page.Page, filter.Page.Limit)
	key, err := s.cache.BuildKey(ctx, filter.CompanyID, "stock",
		strconv.FormatInt(filter.ProductID, 10),
		strconv.FormatInt(filter.ProviderID, 10),
		strconv.Itoa(filter.Page.Page),
		strconv.Itoa(filter.Page.Limit))
	if err != nil {
		s.logger.Warn("inventory cache unavailable", slog.Any("error", err))
		page, err := s.repo.ListStock(ctx, filter)
		return page, shared.Classify(err)
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		var page StockPage
		err := s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
			return s.repo.ListStock(ctx, filter)
		})
		return page, err
	})
	if err != nil {
		return StockPage{}, shared.Classify(fmt.Errorf("inventory: list stock: %w", err))
	}
	return v.(StockPage), nil
}

// InvalidateStock bumps the company's cache version after a committed
// mutation. Failures are logged; the next TTL expiry heals the cache.
func (s *Service) InvalidateStock(ctx context.Context, companyID int64) {
	if err := s.cache.Bump(ctx, companyID); err != nil {
		s.logger.Warn("inventory cache bump failed", slog.Int64("company_id", companyID), slog.Any("error", err))
	}
}

// ListTransactions lists ledger entries for an invoice, return or product.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter) (TransactionPage, error) {
	if filter.CompanyID == 0 {
		return TransactionPage{}, shared.ErrUnauthorized
	}
	filter.Page = shared.NormalizePage(filter.Page.Page, filter.Page.Limit)
	page, err := s.recorder.FindBy(ctx, s.repo, filter)
	return page, shared.Classify(err)
}

// Reconcile compares the ledger sum with on-hand stock per provider.
func (s *Service) Reconcile(ctx context.Context, companyID, productID int64) (Reconciliation, error) {
	if companyID == 0 {
		return Reconciliation{}, shared.ErrUnauthorized
	}
	if productID == 0 {
		return Reconciliation{}, shared.Validationf("inventory: product required")
	}
	stocks, err := s.repo.ListStockByProduct(ctx, companyID, productID)
	if err != nil {
		return Reconciliation{}, shared.Classify(fmt.Errorf("inventory: load stock: %w", err))
	}
	ledger, err := s.repo.LedgerByProvider(ctx, companyID, productID)
	if err != nil {
		return Reconciliation{}, shared.Classify(fmt.Errorf("inventory: load ledger: %w", err))
	}
	return buildReconciliation(companyID, productID, stocks, ledger), nil
}

// ReconcileAll reconciles every stocked product of a company, or of every
// company when companyID is zero, and returns the unbalanced ones.
func (s *Service) ReconcileAll(ctx context.Context, companyID int64) (checked int, mismatches []Reconciliation, err error) {
	keys, err := s.repo.ListStockedProducts(ctx, companyID)
	if err != nil {
		return 0, nil, shared.Classify(fmt.Errorf("inventory: list products: %w", err))
	}
	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return checked, mismatches, err
		}
		rec, err := s.Reconcile(ctx, k.CompanyID, k.ProductID)
		if err != nil {
			return checked, mismatches, err
		}
		checked++
		if !rec.Balanced {
			s.logger.Warn("inventory ledger mismatch",
				slog.Int64("company_id", rec.CompanyID),
				slog.Int64("product_id", rec.ProductID),
				slog.Int64("stock_quantity", rec.StockQuantity),
				slog.Int64("ledger_quantity", rec.LedgerQuantity))
			mismatches = append(mismatches, rec)
		}
	}
	return checked, mismatches, nil
}

func buildReconciliation(companyID, productID int64, stocks []Stock, ledger map[int64]int64) Reconciliation {
	rec := Reconciliation{CompanyID: companyID, ProductID: productID, Balanced: true}
	byProvider := make(map[int64]*ProviderBalance)
	for _, st := range stocks {
		b, ok := byProvider[st.ProviderID]
		if !ok {
			b = &ProviderBalance{ProviderID: st.ProviderID}
			byProvider[st.ProviderID] = b
		}
		b.StockQuantity += st.Quantity
		rec.StockQuantity += st.Quantity
	}
	for providerID, qty := range ledger {
		b, ok := byProvider[providerID]
		if !ok {
			b = &ProviderBalance{ProviderID: providerID}
			byProvider[providerID] = b
		}
		b.LedgerQuantity += qty
		rec.LedgerQuantity += qty
	}
	rec.Providers = make([]ProviderBalance, 0, len(byProvider))
	for _, b := range byProvider {
		if b.StockQuantity != b.LedgerQuantity {
			rec.Balanced = false
		}
		rec.Providers = append(rec.Providers, *b)
	}
	sort.Slice(rec.Providers, func(i, j int) bool {
		return rec.Providers[i].ProviderID < rec.Providers[j].ProviderID
	})
	return rec
}
