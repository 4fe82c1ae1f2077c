package prospect

import "errors"

// ErrInvalidInput is returned when request parameters fail validation.
var ErrInvalidInput = errors.New("prospect: invalid input")

// ErrExportInProgress is returned when an export is requested while another
// run is still processing.
var ErrExportInProgress = errors.New("prospect: an export is already in progress")

// ErrCompanyNotFound is returned when the upstream has no record for the
// requested company.
var ErrCompanyNotFound = errors.New("prospect: company not found")
