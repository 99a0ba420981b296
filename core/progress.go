package core

// Notice kinds
const (
	NoticeSuccess = "success"
	NoticeInfo    = "info"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

type (
	// Tally holds the running counts of an import run.
	Tally struct {
		Imported  int `json:"imported"`
		Duplicate int `json:"duplicate"`
		Skipped   int `json:"skipped"`
	}

	// Progress is a discrete progress update: `Current` of `Total` items, `Label` being the current item.
	Progress struct {
		Current int    `json:"current"`
		Total   int    `json:"total"`
		Label   string `json:"label"`
		Tally   Tally  `json:"tally"`
	}

	// ProgressReporter receives progress updates. Fire-and-forget: it must not block the run.
	ProgressReporter interface {
		Report(p Progress)
	}

	// ProgressFunc adapts a func to a ProgressReporter.
	ProgressFunc func(p Progress)

	// Notifier receives `(title, message, kind)` notices once a run is over.
	Notifier interface {
		Notify(title, message, kind string)
	}
)

func (t Tally) Total() int { return t.Imported + t.Duplicate + t.Skipped }

func (f ProgressFunc) Report(p Progress) { f(p) }

type nopReporter struct{}

func (nopReporter) Report(Progress) {}

// NopReporter discards all progress updates.
var NopReporter ProgressReporter = nopReporter{}

// ReporterOrNop returns r, or NopReporter if r is nil.
func ReporterOrNop(r ProgressReporter) ProgressReporter {
	if r == nil {
		return NopReporter
	}
	return r
}
