package entity

// PostItem is one entry of a PostExecutor batch (spec §4.7).
type PostItem struct {
	Text             string
	ImageURL         string // data: URI or http(s) URL, optional
	Pin              bool
	Alt              string
	IncludeTimestamp bool
}

// PostOptions parameterizes a mass-post batch.
type PostOptions struct {
	Posts        []PostItem
	DelayRange   [2]int
	ReverseOrder bool
}

// PostResult is one line of a PostExecutor report.
type PostResult struct {
	Success bool
	URI     string
	CID     string
	Pinned  bool
	Error   string
}

// PostReport is the full ordered result of running a post batch.
type PostReport struct {
	Results []PostResult
}

// PinnedCount satisfies the spec §8 "0 or 1 pinned posts" invariant check.
func (r PostReport) PinnedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Pinned {
			n++
		}
	}
	return n
}
