package models

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")

	ErrGenerationFailed = errors.New("email generation failed")
	ErrDeliveryFailed   = errors.New("email delivery failed")
	ErrNotConfigured    = errors.New("provider not configured")
	ErrInvalidFilter    = errors.New("invalid filter format")
	ErrNoLeads          = errors.New("no leads found")
)
