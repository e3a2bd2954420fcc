package domain

import "context"

// AnalyticsSink receives fire-and-forget usage events. Implementations must
// not block the caller and must not panic.
type AnalyticsSink interface {
	Record(category, action, label string)
}

// Clipboard copies text for the user.
type Clipboard interface {
	WriteText(ctx context.Context, text string) error
}

// Notifier shows a transient, purely presentational notice.
type Notifier interface {
	Notify(title, description string, variant Variant)
}
