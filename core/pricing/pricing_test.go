package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"costplan/core/types"
	"costplan/internal/cache"
	"costplan/internal/config"
	"costplan/internal/errors"
)

const offerFixture = `{
  "formatVersion": "v1.0",
  "offerCode": "AmazonEC2",
  "version": "20260801",
  "products": {
    "SKU1": {
      "sku": "SKU1",
      "productFamily": "Compute Instance",
      "attributes": {
        "location": "US East (N. Virginia)",
        "instanceType": "t3.micro",
        "tenancy": "Shared",
        "operatingSystem": "Linux",
        "usagetype": "BoxUsage:t3.micro"
      }
    },
    "SKU2": {
      "sku": "SKU2",
      "productFamily": "Compute Instance",
      "attributes": {
        "location": "US East (N. Virginia)",
        "instanceType": "t3.small",
        "tenancy": "Shared",
        "operatingSystem": "Linux",
        "usagetype": "BoxUsage:t3.small"
      }
    },
    "SKU3": {
      "sku": "SKU3",
      "productFamily": "Storage",
      "attributes": {
        "location": "US East (N. Virginia)",
        "volumeApiName": "gp3",
        "usagetype": "EBS:VolumeUsage.gp3"
      }
    }
  },
  "terms": {
    "OnDemand": {
      "SKU1": {
        "SKU1.TERM": {
          "offerTermCode": "JRTCKXETXF",
          "sku": "SKU1",
          "effectiveDate": "2026-08-01T00:00:00Z",
          "priceDimensions": {
            "SKU1.TERM.DIM": {
              "rateCode": "SKU1.TERM.DIM",
              "unit": "Hrs",
              "pricePerUnit": {"USD": "0.0104"}
            }
          }
        }
      },
      "SKU2": {
        "SKU2.TERM": {
          "sku": "SKU2",
          "effectiveDate": "2026-08-01T00:00:00Z",
          "priceDimensions": {
            "SKU2.TERM.DIM": {
              "rateCode": "SKU2.TERM.DIM",
              "unit": "Hrs",
              "pricePerUnit": {"USD": "0.0208"}
            }
          }
        }
      },
      "SKU3": {
        "SKU3.TERM": {
          "sku": "SKU3",
          "effectiveDate": "2026-08-01T00:00:00Z",
          "priceDimensions": {
            "SKU3.TERM.DIM": {
              "rateCode": "SKU3.TERM.DIM",
              "unit": "GB-Mo",
              "pricePerUnit": {"USD": "0.08"}
            }
          }
        }
      }
    }
  }
}`

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewCatalogClient(config.PricingConfig{
		CatalogBaseURL: srv.URL,
		CatalogTTL:     24 * time.Hour,
		HTTPTimeout:    5 * time.Second,
	}, cache.NewMemoryCache(64))
	return NewResolver(client), srv
}

func serveFixture(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(offerFixture))
}

func TestLookupSinglePerfectMatchIsHigh(t *testing.T) {
	r, _ := newTestResolver(t, serveFixture)

	res, err := r.Lookup(context.Background(), types.PricingLookup{
		Service:      "AmazonEC2",
		Region:       "us-east-1",
		ResourceType: "Compute Instance",
		Attributes: map[string]string{
			"instanceType":    "t3.micro",
			"tenancy":         "shared",
			"operatingSystem": "LINUX",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, types.ConfidenceHigh, res.Confidence)
	assert.False(t, res.FallbackUsed)
	require.Len(t, res.Prices, 1)
	assert.Equal(t, "SKU1", res.Prices[0].SKU)
	assert.Equal(t, types.UnitHour, res.Prices[0].Unit)
	assert.Equal(t, "0.0104", res.Prices[0].UnitPrice.String())
	assert.Equal(t, "BoxUsage:t3.micro", res.Prices[0].UsageType)
	assert.NotEmpty(t, res.SnapshotID)
}

func TestLookupMultiplePerfectMatchesIsMedium(t *testing.T) {
	r, _ := newTestResolver(t, serveFixture)

	res, err := r.Lookup(context.Background(), types.PricingLookup{
		Service:      "AmazonEC2",
		Region:       "us-east-1",
		ResourceType: "Compute Instance",
		Attributes:   map[string]string{"tenancy": "Shared", "operatingSystem": "Linux"},
	})
	require.NoError(t, err)

	assert.Equal(t, types.ConfidenceMedium, res.Confidence)
	require.Len(t, res.Prices, 2)
	assert.Equal(t, "SKU1", res.Prices[0].SKU)
	assert.Equal(t, "SKU2", res.Prices[1].SKU)
}

func TestLookupNoAttributeMatchFallsBack(t *testing.T) {
	r, _ := newTestResolver(t, serveFixture)

	res, err := r.Lookup(context.Background(), types.PricingLookup{
		Service:      "AmazonEC2",
		Region:       "us-east-1",
		ResourceType: "Compute Instance",
		Attributes:   map[string]string{"instanceType": "m5.24xlarge"},
	})
	require.NoError(t, err)

	assert.Equal(t, types.ConfidenceLow, res.Confidence)
	assert.True(t, res.FallbackUsed)
	assert.Len(t, res.Prices, 2)
}

func TestLookupUnknownRegionRejected(t *testing.T) {
	r, _ := newTestResolver(t, serveFixture)

	_, err := r.Lookup(context.Background(), types.PricingLookup{
		Service:      "AmazonEC2",
		Region:       "mars-central-1",
		ResourceType: "Compute Instance",
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeValidation))
}

func TestLookupUnsupportedService(t *testing.T) {
	r, _ := newTestResolver(t, serveFixture)

	_, err := r.Lookup(context.Background(), types.PricingLookup{
		Service:      "AmazonQuantumLedger",
		Region:       "us-east-1",
		ResourceType: "Ledger",
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeValidation))
}

func TestLookupNoProductsIsNotFound(t *testing.T) {
	r, _ := newTestResolver(t, serveFixture)

	_, err := r.Lookup(context.Background(), types.PricingLookup{
		Service:      "AmazonEC2",
		Region:       "us-east-1",
		ResourceType: "Quantum Computer",
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeNotFound))
}

func TestLookupUpstreamFailure(t *testing.T) {
	r, _ := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := r.Lookup(context.Background(), types.PricingLookup{
		Service:      "AmazonEC2",
		Region:       "us-east-1",
		ResourceType: "Compute Instance",
	})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.TypeUpstream))
}

func TestCatalogCachedAcrossLookups(t *testing.T) {
	var fetches int64
	r, _ := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt64(&fetches, 1)
		w.Write([]byte(offerFixture))
	})

	lookup := types.PricingLookup{
		Service:      "AmazonEC2",
		Region:       "us-east-1",
		ResourceType: "Compute Instance",
		Attributes:   map[string]string{"instanceType": "t3.micro", "tenancy": "Shared", "operatingSystem": "Linux"},
	}

	first, err := r.Lookup(context.Background(), lookup)
	require.NoError(t, err)
	second, err := r.Lookup(context.Background(), lookup)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&fetches))
	assert.Equal(t, first.SnapshotID, second.SnapshotID)
	assert.Equal(t, first.Prices, second.Prices)
}

func TestCanonicalUnit(t *testing.T) {
	assert.Equal(t, types.UnitHour, CanonicalUnit("Hrs"))
	assert.Equal(t, types.UnitHour, CanonicalUnit(" hours "))
	assert.Equal(t, types.UnitGBMonth, CanonicalUnit("GB-Mo"))
	assert.Equal(t, types.UnitLCUHour, CanonicalUnit("LCU-Hrs"))
	assert.Equal(t, types.UnitConnectionHour, CanonicalUnit("Connection-Hrs"))
	assert.Equal(t, types.UnitConnectionHour, CanonicalUnit("connection-hours"))
	assert.Equal(t, types.PriceUnit("Bizarre"), CanonicalUnit("Bizarre"))
}

func TestNormalizeRegion(t *testing.T) {
	loc, ok := NormalizeRegion("eu-west-1")
	require.True(t, ok)
	assert.Equal(t, "EU (Ireland)", loc)

	_, ok = NormalizeRegion("nowhere-1")
	assert.False(t, ok)
}
