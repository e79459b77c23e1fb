package uploader

import "sync"

// PreviewRegistry pairs each local preview handle with a disposer and
// releases it deterministically when the preview is superseded or the form
// tears down. Previously these handles leaked for the page's lifetime.
type PreviewRegistry struct {
	mu        sync.Mutex
	disposers map[string]func() error
	closed    bool
}

func NewPreviewRegistry() *PreviewRegistry {
	return &PreviewRegistry{disposers: make(map[string]func() error)}
}

// Acquire registers a preview under key. If a preview already exists for
// that key it is released first, so replacing a selected file cannot leak
// the old handle. After Close, the disposer runs immediately.
func (r *PreviewRegistry) Acquire(key string, dispose func() error) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		if dispose != nil {
			return dispose()
		}
		return nil
	}
	old := r.disposers[key]
	r.disposers[key] = dispose
	r.mu.Unlock()

	if old != nil {
		return old()
	}
	return nil
}

// Release disposes the preview under key, if any. Safe to call twice.
func (r *PreviewRegistry) Release(key string) error {
	r.mu.Lock()
	dispose := r.disposers[key]
	delete(r.disposers, key)
	r.mu.Unlock()

	if dispose != nil {
		return dispose()
	}
	return nil
}

// Close releases every outstanding preview. The registry rejects new
// acquisitions afterwards.
func (r *PreviewRegistry) Close() error {
	r.mu.Lock()
	disposers := r.disposers
	r.disposers = make(map[string]func() error)
	r.closed = true
	r.mu.Unlock()

	var firstErr error
	for _, dispose := range disposers {
		if dispose == nil {
			continue
		}
		if err := dispose(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len reports the number of live previews.
func (r *PreviewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.disposers)
}
