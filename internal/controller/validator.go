package controller

import (
	"errors"

	"github.com/tejusbharadwaj/simdash/internal/models"
)

var (
	// ErrInvalidState is returned when an operation is not allowed in the
	// current phase. State is left untouched.
	ErrInvalidState = errors.New("invalid state")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("controller closed")
)

// Reasons reported by Validate.
const (
	ReasonWeatherRequired    = "weather file required"
	ReasonModelOrDimensions  = "building model or all three dimensions required"
	ReasonPositiveDimensions = "dimensions must be positive numbers"
	ReasonRunIDRequired      = "run id required"
)

// ValidationError rejects a request before anything is sent.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// Validate checks that req can be submitted: a weather file is always
// required, plus either a building model or three positive dimensions.
// A zero-byte building model counts as absent and is not uploaded.
func Validate(req models.SimulationRequest) error {
	if req.Weather == nil {
		return &ValidationError{Reason: ReasonWeatherRequired}
	}
	if req.BuildingModel.Present() {
		return nil
	}

	d := req.Dimensions
	if d.Length == 0 || d.Width == 0 || d.Height == 0 {
		return &ValidationError{Reason: ReasonModelOrDimensions}
	}
	if !d.Complete() {
		return &ValidationError{Reason: ReasonPositiveDimensions}
	}
	return nil
}
