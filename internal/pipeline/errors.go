package pipeline

import "errors"

// Sentinel errors for the analysis pipeline. Handlers map these onto HTTP
// status codes.
var (
	// ErrNoFile indicates the request carried no archive.
	ErrNoFile = errors.New("no archive provided")
	// ErrExtraction indicates a corrupt or invalid archive.
	ErrExtraction = errors.New("archive extraction failed")
	// ErrNoData indicates the archive contained no classifiable files, or
	// every per-file summarization failed.
	ErrNoData = errors.New("no analyzable data in archive")
	// ErrUpstream indicates the final synthesis call failed outright.
	ErrUpstream = errors.New("upstream synthesis call failed")
	// ErrMalformedResponse indicates the synthesis call returned unparseable content.
	ErrMalformedResponse = errors.New("malformed synthesis response")
	// ErrStorage indicates persistence failed after a successful synthesis.
	ErrStorage = errors.New("failed to store analysis")
)
