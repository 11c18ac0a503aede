package entity

// Expense status values
const (
	StatusSubmitted = "submitted"
	StatusProcessed = "processed"
)

// Defaults applied at submission and processing
const (
	DefaultCategory    = "Other"
	DefaultSubmittedBy = "Anonymous"
	DefaultProcessedBy = "Admin"
)

// DateLayout is the format used when the service fills in a missing date.
const DateLayout = "2006-01-02"
