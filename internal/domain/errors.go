package domain

import "errors"

var (
	ErrExtraction          = errors.New("symbol extraction failed")
	ErrScoring             = errors.New("relevance scoring failed")
	ErrIndexCorrupt        = errors.New("index is corrupt")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrCorpusRoot          = errors.New("corpus root not found")
	ErrInvalidBudget       = errors.New("invalid budget ratios")
	ErrPathOutsideRoot     = errors.New("path outside root")
)

