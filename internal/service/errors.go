package service

import "errors"

var (
	ErrNoActiveConsultants = errors.New("no active consultants")
	ErrRateLimited         = errors.New("ticket provider rate limited")
	ErrAuthFailure         = errors.New("ticket provider credentials missing or rejected")
	ErrInvalidLink         = errors.New("invalid booking link")
	ErrCacheUnavailable    = errors.New("ticket cache unavailable")
	ErrSyncInFlight        = errors.New("ticket sync already in flight")
	ErrAuthorNotFound      = errors.New("author not found")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrActiveBooking       = errors.New("author already has an active booking")
	ErrInvalidSlot         = errors.New("invalid booking slot")
	ErrInvalidTransition   = errors.New("invalid booking status transition")
	ErrUnknownConsultant   = errors.New("unknown consultant")
	ErrUnknownStage        = errors.New("unknown stage")
	ErrInvalidStatus       = errors.New("invalid status")
	ErrTicketNotFound      = errors.New("ticket not found")
)
