package admission

// errCancelled signals that a queue entry was cancelled while waiting.
type errCancelled struct{ id string }

func (e errCancelled) Error() string { return "cancelled: " + e.id }

// IsCancelled reports whether err indicates a cancelled queue entry.
func IsCancelled(err error) bool {
	_, ok := err.(errCancelled)
	return ok
}

// errDuplicateRequest signals an enqueue with an id already in the queue.
// This is a programming-contract error, reported synchronously.
type errDuplicateRequest struct{ id string }

func (e errDuplicateRequest) Error() string { return "duplicate request id: " + e.id }

// IsDuplicateRequest reports whether err indicates a duplicate request id.
func IsDuplicateRequest(err error) bool {
	_, ok := err.(errDuplicateRequest)
	return ok
}
