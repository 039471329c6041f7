package download

// errUnknownSource signals a submit with an unsupported source type.
type errUnknownSource struct{ sourceType string }

func (e errUnknownSource) Error() string { return "unknown source type: " + e.sourceType }

// IsUnknownSource reports whether err indicates an unsupported source type.
func IsUnknownSource(err error) bool {
	_, ok := err.(errUnknownSource)
	return ok
}

// errBadSubmit signals a submit missing a model id or source URI.
type errBadSubmit struct{}

func (errBadSubmit) Error() string { return "model id and source uri are required" }

// IsBadSubmit reports whether err indicates an invalid submit payload.
func IsBadSubmit(err error) bool {
	_, ok := err.(errBadSubmit)
	return ok
}

// errQueueSaturated signals the job queue is full.
type errQueueSaturated struct{}

func (errQueueSaturated) Error() string { return "download queue is full" }

// IsQueueSaturated reports whether err indicates job backpressure.
func IsQueueSaturated(err error) bool {
	_, ok := err.(errQueueSaturated)
	return ok
}
