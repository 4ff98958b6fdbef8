package client

// SyncError marks a durable store operation that failed after its local
// optimistic effect was already applied. The engine retries with a bounded
// budget and then logs the soft inconsistency; it never crashes the client
// and never rolls back the local view.
type SyncError struct {
	Op  string
	Err error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return "sync error: " + e.Op
	}
	return "sync error: " + e.Op + ": " + e.Err.Error()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}
