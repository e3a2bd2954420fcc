package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/promptforge/go-controller/internal/domain"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// #region catalog-types
// catalogFile is the YAML shape of a catalog.
type catalogFile struct {
	FallbackTopic string              `yaml:"fallback_topic"`
	Seeds         map[string]string   `yaml:"seeds"`
	Transitions   map[string]string   `yaml:"transitions"`
	Templates     map[string][]string `yaml:"templates"`
}

// Catalog is a parsed, immutable template catalog.
type Catalog struct {
	fallbackTopic string
	seeds         map[domain.Mode]string
	transitions   map[domain.Mode]string
	templates     map[domain.Tier][]*template.Template
}

// templateData is what templates are executed against.
type templateData struct {
	Topic string
}

// #endregion catalog-types

// #region loaders
// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog reads and parses a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog parses YAML catalog bytes. Every tier needs at least one
// template and every template must reference {{.Topic}}.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshal catalog: %w", err)
	}

	c := &Catalog{
		fallbackTopic: strings.TrimSpace(f.FallbackTopic),
		seeds:         make(map[domain.Mode]string),
		transitions:   make(map[domain.Mode]string),
		templates:     make(map[domain.Tier][]*template.Template),
	}
	if c.fallbackTopic == "" {
		c.fallbackTopic = "your idea"
	}

	for name, text := range f.Seeds {
		mode, err := domain.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("seeds: %w", err)
		}
		c.seeds[mode] = strings.TrimSpace(text)
	}
	for name, text := range f.Transitions {
		mode, err := domain.ParseMode(name)
		if err != nil {
			return nil, fmt.Errorf("transitions: %w", err)
		}
		c.transitions[mode] = strings.TrimSpace(text)
	}

	for name, sources := range f.Templates {
		tier, err := domain.ParseTier(name)
		if err != nil || !tier.Valid() {
			return nil, fmt.Errorf("templates: unknown tier %q", name)
		}
		for i, src := range sources {
			if !strings.Contains(src, ".Topic") {
				return nil, fmt.Errorf("templates: %s[%d] has no {{.Topic}} placeholder", tier, i)
			}
			tpl, err := template.New(fmt.Sprintf("%s-%d", tier, i)).Option("missingkey=error").Parse(src)
			if err != nil {
				return nil, fmt.Errorf("templates: %s[%d]: %w", tier, i, err)
			}
			c.templates[tier] = append(c.templates[tier], tpl)
		}
	}

	for _, tier := range []domain.Tier{domain.Tier1, domain.Tier2, domain.Tier3} {
		if len(c.templates[tier]) == 0 {
			return nil, fmt.Errorf("templates: %s has no templates", tier)
		}
	}
	return c, nil
}

// #endregion loaders

// #region accessors
// Variants returns how many templates a tier has.
func (c *Catalog) Variants(tier domain.Tier) int {
	return len(c.templates[tier])
}

// Seed returns the greeting for a fresh conversation in mode.
func (c *Catalog) Seed(mode domain.Mode) string {
	if s, ok := c.seeds[mode]; ok && s != "" {
		return s
	}
	return fmt.Sprintf("%s mode. Tell me what you want to build.", mode.Title())
}

// Transition returns the notice appended when switching into mode with
// context preserved.
func (c *Catalog) Transition(mode domain.Mode) string {
	if s, ok := c.transitions[mode]; ok && s != "" {
		return s
	}
	return fmt.Sprintf("Switched to %s mode.", mode.Title())
}

// Render fills template idx of tier with topic.
func (c *Catalog) Render(tier domain.Tier, idx int, topic string) (string, error) {
	tpls := c.templates[tier]
	if idx < 0 || idx >= len(tpls) {
		return "", fmt.Errorf("no template %d for %s", idx, tier)
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		topic = c.fallbackTopic
	}
	var b strings.Builder
	if err := tpls[idx].Execute(&b, templateData{Topic: topic}); err != nil {
		return "", fmt.Errorf("render %s[%d]: %w", tier, idx, err)
	}
	return strings.TrimSpace(b.String()), nil
}

// #endregion accessors
