package model

// BusinessStatus is the canonical lifecycle state of a business within the
// crawl-fingerprint-publish pipeline.
type BusinessStatus string

const (
	StatusPending    BusinessStatus = "pending"
	StatusCrawling   BusinessStatus = "crawling"
	StatusCrawled    BusinessStatus = "crawled"
	StatusGenerating BusinessStatus = "generating"
	StatusPublished  BusinessStatus = "published"
	StatusError      BusinessStatus = "error"
)

// AllStatuses returns every valid business status.
func AllStatuses() []BusinessStatus {
	return []BusinessStatus{
		StatusPending,
		StatusCrawling,
		StatusCrawled,
		StatusGenerating,
		StatusPublished,
		StatusError,
	}
}

// transitions is the legal transition table. crawled→crawling permits
// re-crawls; generating→crawled reverts a failed publish attempt so no
// business is ever parked in generating; error→pending is the manual reset
// path. published has no successors: a status off published would strand the
// assigned QID on a non-published row.
var transitions = map[BusinessStatus][]BusinessStatus{
	StatusPending:    {StatusCrawling, StatusError},
	StatusCrawling:   {StatusCrawled, StatusError},
	StatusCrawled:    {StatusGenerating, StatusCrawling, StatusError},
	StatusGenerating: {StatusPublished, StatusCrawled, StatusError},
	StatusPublished:  {},
	StatusError:      {StatusPending},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to BusinessStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends a pipeline run: published is
// full completion, error requires manual intervention, crawled is a valid
// resting state for teams without publish automation.
func (s BusinessStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusError || s == StatusCrawled
}

// MidPipeline reports whether a run is actively working the business.
func (s BusinessStatus) MidPipeline() bool {
	return s == StatusCrawling || s == StatusGenerating
}
