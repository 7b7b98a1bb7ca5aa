package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Verification flow errors
	ErrLinkExpired     = errors.New("verification link expired or not found")
	ErrESPUnavailable  = errors.New("email service provider unavailable")
	ErrESPRateLimited  = errors.New("email service provider rate limited")
	ErrNotTenantMember = errors.New("record belongs to another tenant")
)
