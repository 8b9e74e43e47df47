package pricing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"costplan/internal/cache"
	"costplan/internal/config"
	"costplan/internal/errors"
	"costplan/internal/logging"
	"costplan/internal/metrics"
)

// supportedServices are the catalog service codes the resolver serves.
var supportedServices = map[string]bool{
	"AmazonEC2":            true,
	"AmazonEBS":            true,
	"AmazonRDS":            true,
	"AmazonS3":             true,
	"AmazonVPC":            true,
	"ElasticLoadBalancing": true,
	"AWSDataTransfer":      true,
	"AmazonCloudWatch":     true,
}

// SupportedService reports whether a service code has a catalog.
func SupportedService(service string) bool {
	return supportedServices[service]
}

// OfferDocument is the bulk pricing offer file layout
type OfferDocument struct {
	FormatVersion   string                `json:"formatVersion"`
	OfferCode       string                `json:"offerCode"`
	Version         string                `json:"version"`
	PublicationDate string                `json:"publicationDate"`
	Products        map[string]Product    `json:"products"`
	Terms           Terms                 `json:"terms"`
}

// Product is one priced product in an offer file
type Product struct {
	SKU           string            `json:"sku"`
	ProductFamily string            `json:"productFamily"`
	Attributes    map[string]string `json:"attributes"`
}

// Terms holds the on-demand pricing terms
type Terms struct {
	OnDemand map[string]map[string]Term `json:"OnDemand"`
}

// Term is one pricing term for a product
type Term struct {
	OfferTermCode   string                    `json:"offerTermCode"`
	SKU             string                    `json:"sku"`
	EffectiveDate   string                    `json:"effectiveDate"`
	PriceDimensions map[string]PriceDimension `json:"priceDimensions"`
}

// PriceDimension is one billable dimension of a term
type PriceDimension struct {
	RateCode     string            `json:"rateCode"`
	Description  string            `json:"description"`
	BeginRange   string            `json:"beginRange"`
	EndRange     string            `json:"endRange"`
	Unit         string            `json:"unit"`
	PricePerUnit map[string]string `json:"pricePerUnit"`
}

// Catalog is a decoded offer document plus its snapshot identity
type Catalog struct {
	// SnapshotID is the content hash of the raw document bytes
	SnapshotID string

	// Service is the catalog service code
	Service string

	// Document is the decoded offer file
	Document *OfferDocument
}

// CatalogClient fetches offer documents and caches the raw bytes.
type CatalogClient struct {
	httpClient *http.Client
	baseURL    string
	cache      cache.Cache
	ttl        time.Duration
	logger     *zap.Logger
}

// NewCatalogClient creates a catalog client over the given cache.
func NewCatalogClient(cfg config.PricingConfig, c cache.Cache) *CatalogClient {
	return &CatalogClient{
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		baseURL:    cfg.CatalogBaseURL,
		cache:      c,
		ttl:        cfg.CatalogTTL,
		logger:     logging.Logger.With(zap.String("component", "pricing_catalog")),
	}
}

// Fetch returns the catalog for a service and region, from cache when a
// live entry exists, otherwise from the upstream price-list endpoint.
func (c *CatalogClient) Fetch(ctx context.Context, service, region string) (*Catalog, error) {
	if !SupportedService(service) {
		return nil, errors.Validation("unsupported service: " + service)
	}

	key := cache.Key("catalog", "global", region, service, "offer", nil)
	if raw, ok := c.cache.Get(ctx, key); ok {
		return decodeCatalog(service, raw)
	}

	raw, err := c.download(ctx, service, region)
	if err != nil {
		metrics.CatalogFetches.WithLabelValues(service, "error").Inc()
		return nil, err
	}
	metrics.CatalogFetches.WithLabelValues(service, "success").Inc()

	catalog, err := decodeCatalog(service, raw)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, raw, c.ttl); err != nil {
		c.logger.Warn("catalog cache write failed",
			zap.String("service", service), zap.Error(err))
	}
	return catalog, nil
}

func (c *CatalogClient) download(ctx context.Context, service, region string) ([]byte, error) {
	url := fmt.Sprintf("%s/offers/v1.0/aws/%s/current/%s/index.json", c.baseURL, service, region)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Internal("building catalog request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Upstream("catalog fetch failed", err).
			WithContext("service", service).WithContext("region", region)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.TypeUpstream,
			"catalog endpoint returned status %d for %s", resp.StatusCode, service)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Upstream("reading catalog body", err)
	}
	return raw, nil
}

func decodeCatalog(service string, raw []byte) (*Catalog, error) {
	var doc OfferDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Transform("malformed catalog document", err).
			WithContext("service", service)
	}
	sum := sha256.Sum256(raw)
	return &Catalog{
		SnapshotID: hex.EncodeToString(sum[:])[:16],
		Service:    service,
		Document:   &doc,
	}, nil
}
