package types

const (
	// MaxDefaultLines is the default page size for text reports.
	MaxDefaultLines = 200
	// MaxAllowedLines caps the page size a caller may request.
	MaxAllowedLines = 100000
)
