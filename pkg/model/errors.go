package model

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for classifying failures across the pipeline. Wrap
// them with goerr and test with errors.Is.
var (
	// ErrNotFound indicates a requested record does not exist
	ErrNotFound = goerr.New("not found")

	// ErrValidation indicates rejected input; retrying cannot help
	ErrValidation = goerr.New("validation failed")

	// ErrTransient marks failures worth retrying, such as rate limits
	// or upstream unavailability
	ErrTransient = goerr.New("transient failure")
)
