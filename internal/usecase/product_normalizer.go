package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/smartsave/gateway/internal/domain"
	"github.com/smartsave/gateway/internal/infrastructure/cache"
)

// NormalizerConfig holds configuration for the product normalizer
type NormalizerConfig struct {
	FallbackBrand string        // used when a record carries no brand
	Source        string        // provider name stamped on every product
	SweepInterval time.Duration // minimum time between sweeps of the identity cache
	Clock         cache.Clock   // defaults to time.Now
}

// DefaultNormalizerConfig returns the configuration used for Mercadona products
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		FallbackBrand: "Mercadona",
		Source:        "Mercadona",
		SweepInterval: 30 * time.Minute,
	}
}

// ProductNormalizer turns raw bridge records into canonical products.
// Products are cached by external id so repeated listings reuse earlier work.
type ProductNormalizer struct {
	config NormalizerConfig
	cache  *cache.TimedCache[string, domain.Product]
	logger *zap.Logger
	now    cache.Clock

	sweepMu   sync.Mutex
	lastSweep time.Time
}

// NewProductNormalizer creates a normalizer backed by the given identity cache
func NewProductNormalizer(cfg NormalizerConfig, products *cache.TimedCache[string, domain.Product], logger *zap.Logger) *ProductNormalizer {
	defaults := DefaultNormalizerConfig()
	if cfg.FallbackBrand == "" {
		cfg.FallbackBrand = defaults.FallbackBrand
	}
	if cfg.Source == "" {
		cfg.Source = defaults.Source
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	if products == nil {
		products = cache.NewTimedCache[string, domain.Product](cache.Options[domain.Product]{TTL: time.Hour, Clock: now})
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ProductNormalizer{
		config:    cfg,
		cache:     products,
		logger:    logger.With(zap.String("component", "product_normalizer")),
		now:       now,
		lastSweep: now(),
	}
}

// Normalize converts a single raw record. A record that cannot become a valid
// product yields an error wrapping domain.ErrRecordRejected.
func (n *ProductNormalizer) Normalize(rec *domain.RawRecord) (domain.Product, error) {
	n.maybeSweep()

	if rec == nil {
		return domain.Product{}, fmt.Errorf("%w: nil record", domain.ErrRecordRejected)
	}

	raw := strings.TrimSpace(string(rec.ID))
	id, err := parseExternalID(raw)
	if err != nil {
		return domain.Product{}, err
	}

	// "1003" and "1003.0" name the same product
	key := canonicalKey(id)
	if cached, ok := n.cache.Get(key); ok {
		return cached, nil
	}

	brand := n.config.FallbackBrand
	if rec.Brand != nil {
		brand = strings.TrimSpace(*rec.Brand)
	}

	category := CanonicalCategory(rec.Category)

	nutrition := DefaultNutrition(category)
	if rec.Nutrition != nil {
		if provided := mapNutrition(rec.Nutrition); !provided.IsZero() {
			nutrition = provided
		}
	}

	product := domain.Product{
		ID:        id,
		Name:      strings.TrimSpace(rec.Name),
		Brand:     brand,
		Category:  category,
		Source:    n.config.Source,
		Available: true,
		Nutrition: nutrition,
	}
	if rec.UnitPrice != nil {
		product.Price = *rec.UnitPrice
	}

	if err := validateProduct(product, rec.UnitPrice != nil); err != nil {
		return domain.Product{}, fmt.Errorf("%w: id %q: %v", domain.ErrRecordRejected, raw, err)
	}

	n.cache.Put(key, product)
	return product, nil
}

// NormalizeAll decodes and normalizes every element of a listing. Elements that
// fail to decode or normalize are skipped; the number skipped is returned.
func (n *ProductNormalizer) NormalizeAll(records []json.RawMessage) ([]domain.Product, int) {
	products := make([]domain.Product, 0, len(records))
	rejected := 0

	for i, raw := range records {
		var rec domain.RawRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			rejected++
			n.logger.Warn("skipping undecodable record", zap.Int("index", i), zap.Error(err))
			continue
		}

		product, err := n.Normalize(&rec)
		if err != nil {
			rejected++
			n.logger.Warn("skipping rejected record", zap.Int("index", i), zap.Error(err))
			continue
		}
		products = append(products, product)
	}

	return products, rejected
}

// ClearCache drops every cached product
func (n *ProductNormalizer) ClearCache() {
	n.cache.Clear()
	n.logger.Info("product cache cleared")
}

// Cached returns a previously normalized product by external id, in either
// its integer or decimal form
func (n *ProductNormalizer) Cached(id string) (domain.Product, bool) {
	parsed, err := parseExternalID(strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, false
	}
	return n.cache.Get(canonicalKey(parsed))
}

// CacheSize returns the number of products currently cached
func (n *ProductNormalizer) CacheSize() int {
	return n.cache.Len()
}

func (n *ProductNormalizer) maybeSweep() {
	n.sweepMu.Lock()
	defer n.sweepMu.Unlock()

	now := n.now()
	if now.Sub(n.lastSweep) <= n.config.SweepInterval {
		return
	}
	n.lastSweep = now

	if removed := n.cache.Sweep(); removed > 0 {
		n.logger.Debug("swept expired products", zap.Int("removed", removed))
	}
}

// parseExternalID accepts integer and decimal literals ("482910", "482910.0"),
// truncating the decimal form.
func parseExternalID(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: missing id", domain.ErrRecordRejected)
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: invalid id %q", domain.ErrRecordRejected, s)
	}
	f = math.Trunc(f)
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: id %q out of range", domain.ErrRecordRejected, s)
	}
	return int64(f), nil
}

func canonicalKey(id int64) string {
	return strconv.FormatInt(id, 10)
}

func validateProduct(p domain.Product, hasPrice bool) error {
	switch {
	case p.Name == "":
		return errors.New("empty name")
	case p.Brand == "":
		return errors.New("empty brand")
	case p.Category == "":
		return errors.New("empty category")
	case p.Source == "":
		return errors.New("empty source")
	case !hasPrice:
		return errors.New("missing price")
	}
	return nil
}
