package prompt

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

// #region selector-interface
// Selector turns a tier and the user's topic into a prompt. Implementations
// may be local (TemplateSelector) or remote (codec.Client).
type Selector interface {
	Select(ctx context.Context, tier domain.Tier, topic string, isRefresh bool) (string, error)
}

// #endregion selector-interface

// #region template-selector
// TemplateSelector picks from a Catalog. The first call for a tier without
// refresh is always the canonical template 0; refreshes pick uniformly at
// random and may repeat the previous pick.
type TemplateSelector struct {
	mu      sync.Mutex
	catalog *Catalog
	rng     *rand.Rand
}

// NewTemplateSelector creates a selector seeded for reproducible refreshes.
func NewTemplateSelector(catalog *Catalog, seed uint64) *TemplateSelector {
	return NewTemplateSelectorWithSource(catalog, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NewTemplateSelectorWithSource creates a selector over an injected source.
func NewTemplateSelectorWithSource(catalog *Catalog, src rand.Source) *TemplateSelector {
	return &TemplateSelector{
		catalog: catalog,
		rng:     rand.New(src),
	}
}

// Select renders a template for tier with topic substituted.
func (s *TemplateSelector) Select(ctx context.Context, tier domain.Tier, topic string, isRefresh bool) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.catalog.Variants(tier)
	if n == 0 {
		return "", fmt.Errorf("select: no templates for %s", tier)
	}
	idx := 0
	if isRefresh {
		idx = s.rng.IntN(n)
	}
	return s.catalog.Render(tier, idx, topic)
}

// Catalog returns the catalog currently in use.
func (s *TemplateSelector) Catalog() *Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog
}

// SetCatalog swaps the catalog, e.g. after a hot reload.
func (s *TemplateSelector) SetCatalog(c *Catalog) {
	s.mu.Lock()
	s.catalog = c
	s.mu.Unlock()
}

// #endregion template-selector

// #region selector-func
// SelectorFunc adapts a function to the Selector interface.
type SelectorFunc func(ctx context.Context, tier domain.Tier, topic string, isRefresh bool) (string, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context, tier domain.Tier, topic string, isRefresh bool) (string, error) {
	return f(ctx, tier, topic, isRefresh)
}

// #endregion selector-func
