package product

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/damian-zhang-1027/order-service/internal/order/domain"
	"github.com/damian-zhang-1027/order-service/internal/shared/infra/platform/tracing"
)

// HTTPProductGateway consulta GET {baseURL}/api/v1/products/{id}.
type HTTPProductGateway struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

// NewHTTPProductGateway: el timeout por consulta lo fija quien llama vía contexto;
// el del cliente es solo un tope de seguridad.
func NewHTTPProductGateway(baseURL string, client *http.Client, log *zap.Logger) *HTTPProductGateway {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProductGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     log,
	}
}

type productEnvelope struct {
	Data *domain.Product `json:"data"`
}

func (g *HTTPProductGateway) FetchProduct(ctx context.Context, productID int64) (*domain.Product, error) {
	url := g.baseURL + "/api/v1/products/" + strconv.FormatInt(productID, 10)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectHTTP(ctx, req.Header)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("product service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.log.Warn("Product service returned non-200",
			zap.Int64("product_id", productID),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return nil, fmt.Errorf("product service returned %d for product %d", resp.StatusCode, productID)
	}

	var env productEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("invalid product response: %w", err)
	}
	if env.Data == nil {
		return nil, fmt.Errorf("empty product response for product %d", productID)
	}
	return env.Data, nil
}

var _ domain.ProductGateway = (*HTTPProductGateway)(nil)
