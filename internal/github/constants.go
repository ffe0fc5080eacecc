package github

// API configuration.
const (
	DefaultBaseURL = "https://api.github.com"
	AcceptHeader   = "application/vnd.github+json"
	APIVersion     = "2022-11-28"
	UserAgent      = "epack-collector-template-security"
)

// PerPage is the REST page size; a shorter page ends pagination.
const PerPage = 100

// Security status values.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// Content entry types.
const (
	ContentTypeFile = "file"
	ContentTypeDir  = "dir"
)
