package eval

import "github.com/danielpatrickdp/promptforge/go-controller/internal/state"

// #region eval-config
// EvalConfig holds the limits a conversation must respect.
type EvalConfig struct {
	MaxRefreshes     int
	MaxMessageLength int
}

// DefaultEvalConfig matches the conversation defaults.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxRefreshes:     state.MaxRefreshes,
		MaxMessageLength: state.MaxMessageLength,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single invariant check result.
type EvalMetric struct {
	Name  string
	Value float32
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of an invariant run.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// Failed returns the names of failing checks.
func (r EvalResult) Failed() []string {
	var out []string
	for _, m := range r.Metrics {
		if !m.Pass {
			out = append(out, m.Name)
		}
	}
	return out
}

// #endregion eval-result
