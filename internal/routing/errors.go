package routing

// errNoModel signals an explicit policy without a model id.
type errNoModel struct{}

func (errNoModel) Error() string { return "explicit policy requires a model id" }

// IsNoModel reports whether err indicates a missing explicit model.
func IsNoModel(err error) bool {
	_, ok := err.(errNoModel)
	return ok
}

// errBadPolicy signals an unknown selection policy.
type errBadPolicy struct{ policy string }

func (e errBadPolicy) Error() string { return "unknown selection policy: " + e.policy }

// IsBadPolicy reports whether err indicates an unknown policy.
func IsBadPolicy(err error) bool {
	_, ok := err.(errBadPolicy)
	return ok
}

// errEmptyInput signals a dispatch without prompt text.
type errEmptyInput struct{}

func (errEmptyInput) Error() string { return "input is required" }

// IsEmptyInput reports whether err indicates an empty prompt.
func IsEmptyInput(err error) bool {
	_, ok := err.(errEmptyInput)
	return ok
}
