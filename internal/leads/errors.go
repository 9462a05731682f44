package leads

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidLead is wrapped by every validation failure below.
	ErrInvalidLead = errors.New("leads: invalid lead")

	ErrInvalidName    = fmt.Errorf("%w: name is required", ErrInvalidLead)
	ErrMissingContact = fmt.Errorf("%w: email or phone is required", ErrInvalidLead)
	ErrInvalidEmail   = fmt.Errorf("%w: email is malformed", ErrInvalidLead)

	ErrLeadNotFound = errors.New("leads: lead not found")

	// ErrExtractionFailure is returned when the extraction model does not produce usable JSON.
	ErrExtractionFailure = errors.New("leads: extraction failed")
)
