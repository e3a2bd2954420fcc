package prompt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

const smallCatalog = `
fallback_topic: "something"
seeds:
  quick: "hello quick"
templates:
  tier1: ["T1-A {{.Topic}}", "T1-B {{.Topic}}", "T1-C {{.Topic}}"]
  tier2: ["T2 {{.Topic}} and again {{.Topic}}"]
  tier3: ["T3 {{.Topic}}"]
`

func mustCatalog(t *testing.T, src string) *Catalog {
	t.Helper()
	c, err := ParseCatalog([]byte(src))
	require.NoError(t, err)
	return c
}

func TestDefaultCatalogParses(t *testing.T) {
	c, err := DefaultCatalog()
	require.NoError(t, err)
	for _, tier := range []domain.Tier{domain.Tier1, domain.Tier2, domain.Tier3} {
		assert.GreaterOrEqual(t, c.Variants(tier), 1, tier.String())
	}
	for _, m := range domain.Modes {
		assert.NotEmpty(t, c.Seed(m))
		assert.NotEmpty(t, c.Transition(m))
	}
}

func TestSelectCanonicalIsDeterministic(t *testing.T) {
	sel := NewTemplateSelector(mustCatalog(t, smallCatalog), 1)
	for i := 0; i < 5; i++ {
		got, err := sel.Select(context.Background(), domain.Tier1, "gardening", false)
		require.NoError(t, err)
		assert.Equal(t, "T1-A gardening", got)
	}
}

func TestSelectSubstitutesEveryPlaceholder(t *testing.T) {
	sel := NewTemplateSelector(mustCatalog(t, smallCatalog), 1)
	got, err := sel.Select(context.Background(), domain.Tier2, "chess", false)
	require.NoError(t, err)
	assert.Equal(t, "T2 chess and again chess", got)
}

func TestSelectEmptyTopicUsesFallback(t *testing.T) {
	sel := NewTemplateSelector(mustCatalog(t, smallCatalog), 1)
	got, err := sel.Select(context.Background(), domain.Tier3, "   ", false)
	require.NoError(t, err)
	assert.Equal(t, "T3 something", got)
}

func TestRefreshIsReproducibleForSameSeed(t *testing.T) {
	c := mustCatalog(t, smallCatalog)
	a := NewTemplateSelector(c, 42)
	b := NewTemplateSelector(c, 42)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		x, err := a.Select(context.Background(), domain.Tier1, "x", true)
		require.NoError(t, err)
		y, err := b.Select(context.Background(), domain.Tier1, "x", true)
		require.NoError(t, err)
		assert.Equal(t, x, y)
		seen[x] = true
	}
	// Uniform over three variants: 50 draws cover all of them.
	assert.Len(t, seen, 3)
}

func TestSelectUnknownTierFails(t *testing.T) {
	sel := NewTemplateSelector(mustCatalog(t, smallCatalog), 1)
	_, err := sel.Select(context.Background(), domain.TierNone, "x", false)
	assert.Error(t, err)
}

func TestSelectHonoursCancelledContext(t *testing.T) {
	sel := NewTemplateSelector(mustCatalog(t, smallCatalog), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sel.Select(ctx, domain.Tier1, "x", false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseCatalogRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"missing tier":      `templates: {tier1: ["{{.Topic}}"], tier2: ["{{.Topic}}"]}`,
		"no placeholder":    `templates: {tier1: ["plain"], tier2: ["{{.Topic}}"], tier3: ["{{.Topic}}"]}`,
		"unknown tier":      `templates: {tier9: ["{{.Topic}}"]}`,
		"unknown seed mode": `seeds: {turbo: "hi"}`,
		"broken template":   `templates: {tier1: ["{{.Topic"], tier2: ["{{.Topic}}"], tier3: ["{{.Topic}}"]}`,
		"not yaml":          `templates: [`,
	}
	for name, src := range cases {
		_, err := ParseCatalog([]byte(src))
		assert.Error(t, err, name)
	}
}

func TestCatalogWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(smallCatalog), 0o644))

	c, err := LoadCatalog(path)
	require.NoError(t, err)
	sel := NewTemplateSelector(c, 1)

	w, err := NewCatalogWatcher(path, sel, zerolog.Nop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// An invalid write is ignored.
	require.NoError(t, os.WriteFile(path, []byte("templates: ["), 0o644))
	updated := strings.Replace(smallCatalog, "T1-A", "RELOADED", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o644))

	assert.Eventually(t, func() bool {
		got, err := sel.Select(context.Background(), domain.Tier1, "x", false)
		return err == nil && got == "RELOADED x"
	}, 5*time.Second, 20*time.Millisecond)
}
