package domain

// FeedbackAction is an affordance attached to a feedback item, letting the
// user resolve the condition the item reports (e.g. "reopen occasion").
type FeedbackAction struct {
	Label    string
	Callback func()
}

// FeedbackItem is a transient user-facing message, either an error blocking
// submission or an informational note. Field-scoped items carry the name of
// the offending field; list-scoped items leave it empty.
type FeedbackItem struct {
	ID      string
	IsError bool
	Message string
	Field   string
	Data    map[string]any
	Action  *FeedbackAction

	// OnAfterError runs once the surface has displayed the item, typically to
	// move the UI out of a now-invalid context.
	OnAfterError func()
}

// ErrorFeedback builds a field-scoped error item from a message code.
func ErrorFeedback(field, message string) FeedbackItem {
	return FeedbackItem{IsError: true, Field: field, Message: message}
}

// InfoFeedback builds a list-scoped informational item.
func InfoFeedback(message string) FeedbackItem {
	return FeedbackItem{Message: message}
}
