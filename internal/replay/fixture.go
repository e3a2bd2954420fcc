package replay

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var fixtureSchema []byte

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string        `json:"description"`
	Config      FixtureConfig `json:"config"`
	Steps       []FixtureStep `json:"steps"`
}

// FixtureConfig overrides widget defaults for one replay. Zero values keep
// the defaults.
type FixtureConfig struct {
	Mode              string         `json:"mode,omitempty"`
	Thresholds        []int          `json:"thresholds,omitempty"`
	Gate              map[string]int `json:"gate,omitempty"`
	MaxRefreshes      int            `json:"max_refreshes,omitempty"`
	Seed              uint64         `json:"seed,omitempty"`
	GenerationDelayMS *int           `json:"generation_delay_ms,omitempty"`
	// ManualClock leaves time still between steps; only advance steps move
	// it. Otherwise every pending continuation runs after each step.
	ManualClock bool `json:"manual_clock,omitempty"`
}

// FixtureStep is one user operation.
type FixtureStep struct {
	Op         string         `json:"op"`
	Text       string         `json:"text,omitempty"`
	Mode       string         `json:"mode,omitempty"`
	Resolution string         `json:"resolution,omitempty"`
	AdvanceMS  int            `json:"advance_ms,omitempty"`
	Expect     *FixtureExpect `json:"expect,omitempty"`
}

// FixtureExpect lists what must hold after a step. Unset fields are not
// checked.
type FixtureExpect struct {
	Action           string `json:"action,omitempty"`
	Outcome          string `json:"outcome,omitempty"`
	Error            string `json:"error,omitempty"`
	Mode             string `json:"mode,omitempty"`
	InteractionCount *int   `json:"interaction_count,omitempty"`
	RefreshCount     *int   `json:"refresh_count,omitempty"`
	CurrentTier      string `json:"current_tier,omitempty"`
	Messages         *int   `json:"messages,omitempty"`
	Attachments      *int   `json:"attachments,omitempty"`
	Generating       *bool  `json:"generating,omitempty"`
	LastSender       string `json:"last_sender,omitempty"`
	LastContains     string `json:"last_contains,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads, validates and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	f, err := ParseFixture(data)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return f, nil
}

// ParseFixture validates data against the fixture schema and decodes it.
func ParseFixture(data []byte) (*Fixture, error) {
	if err := ValidateFixture(data); err != nil {
		return nil, err
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// ValidateFixture checks data against the embedded JSON schema.
func ValidateFixture(data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("fixture is not valid JSON")
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(fixtureSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// #endregion fixture-loader
