package crawler

// Registry is the set of publication keys already recorded in a session. It
// only grows until the session is discarded. It is not safe for concurrent
// use; the controller guards it.
type Registry struct {
	seen map[PublicationKey]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{seen: make(map[PublicationKey]struct{})}
}

// Seen reports whether key was recorded.
func (r *Registry) Seen(key PublicationKey) bool {
	_, ok := r.seen[key]
	return ok
}

// Record adds key, failing with ErrAlreadyRecorded when it is present.
func (r *Registry) Record(key PublicationKey) error {
	if r.Seen(key) {
		return ErrAlreadyRecorded
	}
	r.seen[key] = struct{}{}
	return nil
}

// Len returns the number of recorded keys.
func (r *Registry) Len() int {
	return len(r.seen)
}
