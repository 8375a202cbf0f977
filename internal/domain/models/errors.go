package models

import "errors"

var (
	ErrInvalidObservation = errors.New("invalid observation")
	ErrStaleObservation   = errors.New("observation is not newer than the last one")
)
