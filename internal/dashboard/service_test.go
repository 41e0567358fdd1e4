package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"cardhub/internal/apiclient"
	"cardhub/internal/domain"
	"cardhub/internal/session"
	"cardhub/pkg/cache"
	apperrors "cardhub/pkg/errors"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI serves a tiny card API over httptest with Spring-style pages.
type fakeAPI struct {
	mu           sync.Mutex
	hits         map[string]int
	customers    []map[string]interface{}
	cards        []map[string]interface{}
	transactions []map[string]interface{}
}

func txn(id, cardID int64, typ, status, amount string, date string) map[string]interface{} {
	return map[string]interface{}{
		"id": id, "cardId": cardID, "customerId": 21,
		"type": typ, "status": status, "amount": amount, "transactionDate": date,
	}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		hits: make(map[string]int),
		customers: []map[string]interface{}{
			{"id": 21, "userId": 4, "firstName": "Ann", "status": "ACTIVE"},
			{"id": 22, "userId": 5, "firstName": "Bob", "status": "BLOCKED"},
			{"id": 23, "userId": 6, "firstName": "Cy", "status": "ACTIVE"},
		},
		cards: []map[string]interface{}{
			{"id": 1, "customerId": 21, "cardType": "GOLD", "status": "ACTIVE", "creditLimit": 1000, "availableCredit": 880},
			{"id": 2, "customerId": 21, "cardType": "SILVER", "status": "BLOCKED", "creditLimit": 500, "availableCredit": 500},
			{"id": 3, "customerId": 22, "cardType": "DIAMOND", "status": "ACTIVE", "creditLimit": 9000, "availableCredit": 9000},
		},
		transactions: []map[string]interface{}{
			txn(1, 1, "PURCHASE", "SUCCESS", "100", "2024-05-02T10:00:00"),
			txn(2, 1, "PURCHASE", "APPROVED", "50", "2024-05-03T10:00:00"),
			txn(3, 1, "PAYMENT", "SUCCESS", "30", "2024-05-04T10:00:00"),
			txn(4, 2, "PURCHASE", "PENDING", "70", "2024-04-20T10:00:00"),
			txn(5, 2, "REFUND", "SUCCESS", "10", "2024-05-05T10:00:00"),
		},
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[name]
}

func (f *fakeAPI) page(w http.ResponseWriter, r *http.Request, name string, items []map[string]interface{}) {
	f.mu.Lock()
	f.hits[name]++
	f.mu.Unlock()

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	if size <= 0 {
		size = 10
	}
	start := page * size
	if start > len(items) {
		start = len(items)
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	totalPages := (len(items) + size - 1) / size

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"data": map[string]interface{}{
			"content":       items[start:end],
			"number":        page,
			"size":          size,
			"totalPages":    totalPages,
			"totalElements": len(items),
		},
	})
}

func (f *fakeAPI) filter(items []map[string]interface{}, key string, value interface{}) []map[string]interface{} {
	var out []map[string]interface{}
	for _, it := range items {
		if it[key] == value {
			out = append(out, it)
		}
	}
	return out
}

func (f *fakeAPI) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/api/customers", func(w http.ResponseWriter, r *http.Request) {
		f.page(w, r, "customers", f.customers)
	})
	r.HandleFunc("/api/cards", func(w http.ResponseWriter, r *http.Request) {
		f.page(w, r, "cards", f.cards)
	})
	r.HandleFunc("/api/cards/status/{status}", func(w http.ResponseWriter, r *http.Request) {
		f.page(w, r, "cards-status", f.filter(f.cards, "status", mux.Vars(r)["status"]))
	})
	r.HandleFunc("/api/cards/customer/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(mux.Vars(r)["id"])
		f.page(w, r, "customer-cards", f.filter(f.cards, "customerId", id))
	})
	r.HandleFunc("/api/cards/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.Atoi(mux.Vars(r)["id"])
		for _, c := range f.cards {
			if c["id"] == id {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(c)
				return
			}
		}
		http.Error(w, `{"message":"Card not found"}`, http.StatusNotFound)
	})
	r.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		f.page(w, r, "transactions", f.transactions)
	})
	r.HandleFunc("/api/transactions/status/{status}", func(w http.ResponseWriter, r *http.Request) {
		f.page(w, r, "status-transactions", f.filter(f.transactions, "status", mux.Vars(r)["status"]))
	})
	r.HandleFunc("/api/transactions/type/{type}", func(w http.ResponseWriter, r *http.Request) {
		f.page(w, r, "type-transactions", f.filter(f.transactions, "type", mux.Vars(r)["type"]))
	})
	r.HandleFunc("/api/transactions/customer/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.page(w, r, "customer-transactions", f.transactions)
	})
	r.HandleFunc("/api/transactions/card/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		f.page(w, r, "card-transactions", f.filter(f.transactions, "cardId", id))
	})
	return r
}

func newTestService(t *testing.T, policy Policy, c Cache) (*Service, *fakeAPI) {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api.router())
	t.Cleanup(srv.Close)

	svc := NewService(apiclient.New(srv.URL, 5*time.Second), c, policy, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC) }
	return svc, api
}

func customerSession() *session.Session {
	return session.NewCustomerSession("tok",
		domain.User{ID: 4, Username: "ann", Role: domain.RoleCustomer},
		&domain.Customer{ID: 21, UserID: 4, FirstName: "Ann"},
		time.Hour)
}

func adminSession() *session.Session {
	return session.NewCustomerSession("admin-tok", domain.User{ID: 1, Username: "root", Role: domain.RoleAdmin}, nil, time.Hour)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCustomerDashboard_StatsCoverEveryPage(t *testing.T) {
	svc, api := newTestService(t, Policy{PageSize: 2, MaxPages: 10, DisplayPageSize: 2}, nil)

	view, err := svc.CustomerDashboard(context.Background(), customerSession())
	require.NoError(t, err)

	assert.True(t, dec("150").Equal(view.Summary.TotalSpent))
	assert.True(t, dec("30").Equal(view.Summary.TotalPaid))
	assert.True(t, dec("120").Equal(view.Summary.PendingAmount))
	assert.Equal(t, 5, view.Summary.TotalTransactions)
	assert.False(t, view.Partial)

	// The display list is one small page.
	assert.Len(t, view.RecentTransactions, 2)

	assert.Len(t, view.Cards, 2)
	assert.Equal(t, 1, view.ActiveCards)
	assert.True(t, dec("1500").Equal(view.TotalCreditLimit))
	assert.True(t, dec("1380").Equal(view.AvailableCredit))

	// 3 pages for the full walk + 1 display page.
	assert.Equal(t, 4, api.count("customer-transactions"))
}

func TestCustomerDashboard_TruncatedWalkIsPartial(t *testing.T) {
	svc, _ := newTestService(t, Policy{PageSize: 2, MaxPages: 2, DisplayPageSize: 2}, nil)

	view, err := svc.CustomerDashboard(context.Background(), customerSession())
	require.NoError(t, err)
	assert.True(t, view.Partial)
	assert.Equal(t, 4, view.Summary.TotalTransactions)
}

func TestCustomerDashboard_ProfileMissing(t *testing.T) {
	svc, _ := newTestService(t, Policy{}, nil)
	sess := customerSession()
	sess.Customer = nil

	_, err := svc.CustomerDashboard(context.Background(), sess)
	assert.ErrorIs(t, err, apperrors.ErrCustomerProfileMissing)
}

func TestCustomerDashboard_CachedUntilInvalidated(t *testing.T) {
	svc, api := newTestService(t, Policy{PageSize: 10, MaxPages: 10, DisplayPageSize: 10, CacheTTL: time.Minute}, cache.NewMemoryCache(100))
	ctx := context.Background()
	sess := customerSession()

	first, err := svc.CustomerDashboard(ctx, sess)
	require.NoError(t, err)
	second, err := svc.CustomerDashboard(ctx, sess)
	require.NoError(t, err)

	assert.Equal(t, 1, api.count("customer-cards"))
	assert.True(t, first.Summary.TotalSpent.Equal(second.Summary.TotalSpent))
	assert.Equal(t, first.Summary.TotalTransactions, second.Summary.TotalTransactions)

	svc.Invalidate(ctx, sess.User.ID)
	_, err = svc.CustomerDashboard(ctx, sess)
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("customer-cards"))
}

func TestSummary(t *testing.T) {
	svc, _ := newTestService(t, Policy{PageSize: 3, MaxPages: 10}, nil)

	view, err := svc.Summary(context.Background(), customerSession())
	require.NoError(t, err)
	assert.True(t, dec("120").Equal(view.Summary.PendingAmount))
	assert.False(t, view.Partial)
}

func TestTransactionsView_PerCard(t *testing.T) {
	svc, _ := newTestService(t, Policy{PageSize: 1, MaxPages: 10, DisplayPageSize: 1}, nil)

	view, err := svc.TransactionsView(context.Background(), customerSession(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.CardID)
	assert.Equal(t, 3, view.Summary.TotalTransactions)
	assert.True(t, dec("150").Equal(view.Summary.TotalSpent))
	assert.True(t, dec("120").Equal(view.Summary.PendingAmount))
	assert.Len(t, view.Transactions, 1)
	assert.Equal(t, 3, view.TotalPages)
	assert.Equal(t, int64(3), view.TotalElements)
}

func TestTransactionsView_SummaryIndependentOfPage(t *testing.T) {
	svc, _ := newTestService(t, Policy{PageSize: 2, MaxPages: 10, DisplayPageSize: 2}, nil)
	ctx := context.Background()

	p0, err := svc.TransactionsView(ctx, customerSession(), 0, 0)
	require.NoError(t, err)
	p2, err := svc.TransactionsView(ctx, customerSession(), 0, 2)
	require.NoError(t, err)

	assert.Len(t, p0.Transactions, 2)
	assert.Len(t, p2.Transactions, 1)
	assert.True(t, p0.Summary.TotalSpent.Equal(p2.Summary.TotalSpent))
	assert.Equal(t, 5, p2.Summary.TotalTransactions)
}

func TestTransactionsView_ForeignCard(t *testing.T) {
	svc, _ := newTestService(t, Policy{}, nil)

	_, err := svc.TransactionsView(context.Background(), customerSession(), 3, 0)
	assert.ErrorIs(t, err, apperrors.ErrCardNotOwned)
}

func TestOwnedCard(t *testing.T) {
	svc, _ := newTestService(t, Policy{}, nil)
	ctx := context.Background()

	card, err := svc.OwnedCard(ctx, customerSession(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.CardGold, card.CardType)

	_, err = svc.OwnedCard(ctx, customerSession(), 3)
	assert.ErrorIs(t, err, apperrors.ErrCardNotOwned)

	_, err = svc.OwnedCard(ctx, customerSession(), 99)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestAdminDashboard(t *testing.T) {
	svc, _ := newTestService(t, Policy{PageSize: 2, MaxPages: 10}, nil)

	view, err := svc.AdminDashboard(context.Background(), adminSession())
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.TotalCustomers)
	assert.Equal(t, int64(3), view.TotalCards)
	assert.Equal(t, 2, view.ActiveCards)
	assert.Equal(t, int64(5), view.TotalTransactions)
	assert.True(t, dec("150").Equal(view.TotalRevenue))
	assert.LessOrEqual(t, len(view.RecentTransactions), adminRecentSize)
}

func TestAdminViews_ForbiddenForCustomers(t *testing.T) {
	svc, _ := newTestService(t, Policy{}, nil)
	ctx := context.Background()

	_, err := svc.AdminDashboard(ctx, customerSession())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
	_, err = svc.Report(ctx, customerSession())
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}

func TestReport(t *testing.T) {
	svc, _ := newTestService(t, Policy{PageSize: 2, MaxPages: 10}, nil)

	report, err := svc.Report(context.Background(), adminSession())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Customers.Total)
	assert.Equal(t, 2, report.Customers.Active)
	assert.Equal(t, 1, report.Customers.Blocked)

	assert.Equal(t, 3, report.Cards.Total)
	assert.Equal(t, 1, report.Cards.ByType[domain.CardDiamond])

	assert.Equal(t, 5, report.Transactions.Total)
	assert.Equal(t, 4, report.Transactions.Approved)
	assert.Equal(t, 1, report.Transactions.Pending)

	// May purchases 150, April had only a pending one.
	assert.True(t, dec("150").Equal(report.Revenue.ThisMonth))
	assert.True(t, report.Revenue.LastMonth.IsZero())
	assert.True(t, dec("100").Equal(report.Revenue.Growth))
	assert.False(t, report.Partial)
}

func TestInvalidateAll(t *testing.T) {
	mem := cache.NewMemoryCache(100)
	svc, api := newTestService(t, Policy{PageSize: 10, MaxPages: 10, CacheTTL: time.Minute}, mem)
	ctx := context.Background()

	_, err := svc.Report(ctx, adminSession())
	require.NoError(t, err)
	_, err = svc.CustomerDashboard(ctx, customerSession())
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Len())

	svc.InvalidateAll(ctx)
	assert.Equal(t, 0, mem.Len())

	_, err = svc.Report(ctx, adminSession())
	require.NoError(t, err)
	assert.Equal(t, 2, api.count("customers"))
}

func TestAdminTransactions_TotalsCoverEveryPage(t *testing.T) {
	svc, api := newTestService(t, Policy{PageSize: 2, MaxPages: 10, DisplayPageSize: 2}, nil)

	view, err := svc.AdminTransactions(context.Background(), adminSession(), apiclient.TransactionFilter{}, apiclient.PageRequest{Page: 1})
	require.NoError(t, err)

	assert.True(t, dec("150").Equal(view.Totals.TotalSpent))
	assert.True(t, dec("30").Equal(view.Totals.TotalPaid))
	assert.True(t, dec("120").Equal(view.Totals.PendingAmount))
	assert.True(t, dec("10").Equal(view.Totals.TotalRefunds))
	assert.Equal(t, 2, view.Totals.PurchaseCount)
	assert.Equal(t, 1, view.Totals.PaymentCount)
	assert.Equal(t, 1, view.Totals.RefundCount)
	assert.Equal(t, 5, view.Totals.TotalTransactions)
	assert.Equal(t, 3, view.ByType[domain.TransactionPurchase])

	assert.Len(t, view.Transactions, 2)
	assert.Equal(t, 1, view.Page)
	assert.Equal(t, 3, view.TotalPages)
	assert.False(t, view.Partial)

	// 3 pages for the totals + 1 display page.
	assert.Equal(t, 4, api.count("transactions"))
}

func TestAdminTransactions_FilterPicksEndpoint(t *testing.T) {
	svc, api := newTestService(t, Policy{PageSize: 10, MaxPages: 10, DisplayPageSize: 10}, nil)
	ctx := context.Background()

	byType, err := svc.AdminTransactions(ctx, adminSession(), apiclient.TransactionFilter{Type: domain.TransactionRefund}, apiclient.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, byType.Totals.TotalTransactions)
	assert.True(t, dec("10").Equal(byType.Totals.TotalRefunds))
	assert.Equal(t, 2, api.count("type-transactions"))

	byStatus, err := svc.AdminTransactions(ctx, adminSession(), apiclient.TransactionFilter{Status: domain.StatusPending}, apiclient.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, byStatus.Totals.TotalTransactions)
	assert.True(t, byStatus.Totals.TotalSpent.IsZero())
	assert.Equal(t, 2, api.count("status-transactions"))

	_, err = svc.AdminTransactions(ctx, customerSession(), apiclient.TransactionFilter{}, apiclient.PageRequest{})
	assert.ErrorIs(t, err, apperrors.ErrForbidden)
}
