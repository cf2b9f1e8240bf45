package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/mocks"
	"github.com/damian-zhang-1027/order-service/internal/order/application"
	orderDomain "github.com/damian-zhang-1027/order-service/internal/order/domain"
)

var testSecret = []byte("test-secret")

type fixture struct {
	router   *gin.Engine
	repo     *mocks.InMemoryOrderRepo
	products *mocks.FakeProductGateway
}

func setupRouter(t *testing.T) fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo := mocks.NewInMemoryOrderRepo()
	products := mocks.NewFakeProductGateway(
		&orderDomain.Product{ID: 101, SellerID: 2, Price: 1500, StockAvailable: 10},
		&orderDomain.Product{ID: 102, SellerID: 7, Price: 900, StockAvailable: 10},
	)
	cache := mocks.NewDummyCache()
	log := zap.NewNop()

	creator := application.NewOrderCreationService(repo, products, &mocks.SequenceIDGenerator{Next: 1000}, application.CreationConfig{}, log)
	browser := application.NewOrderBrowseService(repo, cache, 60, log)

	r := gin.New()
	RegisterOrderRoutes(r, NewOrderHandler(creator, browser, log), testSecret)
	return fixture{router: r, repo: repo, products: products}
}

func bearer(t *testing.T, buyerID int64, secret []byte) string {
	t.Helper()
	return bearerWithRoles(t, buyerID, secret, BuyerRole)
}

func bearerWithRoles(t *testing.T, buyerID int64, secret []byte, roles ...string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, BuyerClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(buyerID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	s, err := tok.SignedString(secret)
	require.NoError(t, err)
	return "Bearer " + s
}

func do(f fixture, method, path, auth string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateOrder_Accepted(t *testing.T) {
	f := setupRouter(t)

	w := do(f, http.MethodPost, "/api/v1/orders", bearer(t, 7, testSecret),
		[]byte(`{"items":[{"productId":101,"quantity":2}]}`))

	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		Data orderDomain.Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1001), resp.Data.ID)
	assert.Equal(t, orderDomain.OrderPending, resp.Data.Status)
	assert.Equal(t, int64(3000), resp.Data.TotalAmount)
	assert.Len(t, f.repo.OutboxSnapshot(), 1)
}

func TestCreateOrder_ErrorMapping(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		setup func(f fixture)
		want  int
	}{
		{name: "empty items", body: `{"items":[]}`, want: http.StatusBadRequest},
		{name: "bad json", body: `{"items":`, want: http.StatusBadRequest},
		{name: "self purchase", body: `{"items":[{"productId":102,"quantity":1}]}`, want: http.StatusBadRequest},
		{name: "insufficient stock", body: `{"items":[{"productId":101,"quantity":11}]}`, want: http.StatusBadRequest},
		{name: "unknown product", body: `{"items":[{"productId":999,"quantity":1}]}`, want: http.StatusServiceUnavailable},
		{
			name: "storage failure",
			body: `{"items":[{"productId":101,"quantity":1}]}`,
			setup: func(f fixture) {
				f.repo.CreateErr = errors.New("disk full")
			},
			want: http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := setupRouter(t)
			if tc.setup != nil {
				tc.setup(f)
			}

			w := do(f, http.MethodPost, "/api/v1/orders", bearer(t, 7, testSecret), []byte(tc.body))

			assert.Equal(t, tc.want, w.Code, w.Body.String())
			assert.Empty(t, f.repo.OutboxSnapshot())
		})
	}
}

func TestAuthentication(t *testing.T) {
	f := setupRouter(t)
	body := []byte(`{"items":[{"productId":101,"quantity":1}]}`)

	assert.Equal(t, http.StatusUnauthorized, do(f, http.MethodPost, "/api/v1/orders", "", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(f, http.MethodPost, "/api/v1/orders", "Bearer garbage", body).Code)
	assert.Equal(t, http.StatusUnauthorized, do(f, http.MethodPost, "/api/v1/orders", bearer(t, 7, []byte("other")), body).Code)
	assert.Equal(t, http.StatusForbidden, do(f, http.MethodPost, "/api/v1/orders", bearerWithRoles(t, 7, testSecret, "ROLE_SELLER_ADMIN"), body).Code)
	assert.Equal(t, http.StatusForbidden, do(f, http.MethodGet, "/api/v1/orders", bearerWithRoles(t, 7, testSecret), nil).Code)
	assert.Empty(t, f.repo.OutboxSnapshot())
}

func TestListAndGetMyOrders(t *testing.T) {
	f := setupRouter(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 3; i++ {
		f.repo.Seed(orderDomain.NewOrder(i, 7, []orderDomain.OrderItem{
			{ProductID: 101, SellerID: 2, Quantity: 1, UnitPrice: 100},
		}, base.Add(time.Duration(i)*time.Minute)))
	}
	f.repo.Seed(orderDomain.NewOrder(50, 8, nil, base))

	t.Run("list is paginated", func(t *testing.T) {
		w := do(f, http.MethodGet, "/api/v1/orders?page=0&size=2", bearer(t, 7, testSecret), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Data []orderDomain.Order `json:"data"`
			Meta struct {
				Total      int `json:"total"`
				TotalPages int `json:"totalPages"`
			} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)
		assert.Equal(t, int64(3), resp.Data[0].ID)
		assert.Equal(t, 3, resp.Meta.Total)
		assert.Equal(t, 2, resp.Meta.TotalPages)
	})

	t.Run("invalid page", func(t *testing.T) {
		w := do(f, http.MethodGet, "/api/v1/orders?page=-1", bearer(t, 7, testSecret), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("own order", func(t *testing.T) {
		w := do(f, http.MethodGet, "/api/v1/orders/2", bearer(t, 7, testSecret), nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("foreign order", func(t *testing.T) {
		w := do(f, http.MethodGet, "/api/v1/orders/50", bearer(t, 7, testSecret), nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing order", func(t *testing.T) {
		w := do(f, http.MethodGet, "/api/v1/orders/404", bearer(t, 7, testSecret), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		w := do(f, http.MethodGet, "/api/v1/orders/abc", bearer(t, 7, testSecret), nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
