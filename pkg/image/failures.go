package image

import "sync"

// FailureRecord remembers what has already been diagnosed or retried so
// diagnostics are emitted once and retries stay bounded. It only grows
// until Reset.
type FailureRecord struct {
	mu sync.Mutex

	diagnosed map[string]struct{} // failing URLs already logged
	warned    map[string]struct{} // contexts already warned about invalid paths
	retried   map[string]struct{} // base URLs that already got their one retry
	issued    map[string]struct{} // retry URLs handed out by HandleError
}

// NewFailureRecord creates an empty record
func NewFailureRecord() *FailureRecord {
	f := &FailureRecord{}
	f.Reset()
	return f
}

// Reset forgets everything
func (f *FailureRecord) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diagnosed = make(map[string]struct{})
	f.warned = make(map[string]struct{})
	f.retried = make(map[string]struct{})
	f.issued = make(map[string]struct{})
}

// MarkDiagnosed records a failing URL; it reports true the first time only
func (f *FailureRecord) MarkDiagnosed(url string) bool {
	return f.add(&f.diagnosed, url)
}

// MarkWarned records an invalid-path warning for a context; true the first time only
func (f *FailureRecord) MarkWarned(context string) bool {
	return f.add(&f.warned, context)
}

// MarkRetried claims the single retry for a base URL; true the first time only
func (f *FailureRecord) MarkRetried(base, retryURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.retried[base]; ok {
		return false
	}
	f.retried[base] = struct{}{}
	f.issued[retryURL] = struct{}{}
	return true
}

// IsIssuedRetry reports whether url is a retry URL this record handed out
func (f *FailureRecord) IsIssuedRetry(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.issued[url]
	return ok
}

// FailureStats is a point-in-time size of the record
type FailureStats struct {
	Diagnosed      int `json:"diagnosed"`
	WarnedContexts int `json:"warned_contexts"`
	Retried        int `json:"retried"`
}

// Stats returns the current sizes
func (f *FailureRecord) Stats() FailureStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FailureStats{
		Diagnosed:      len(f.diagnosed),
		WarnedContexts: len(f.warned),
		Retried:        len(f.retried),
	}
}

func (f *FailureRecord) add(set *map[string]struct{}, key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := (*set)[key]; ok {
		return false
	}
	(*set)[key] = struct{}{}
	return true
}
