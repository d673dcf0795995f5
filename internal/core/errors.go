package core

import "errors"

// Failure taxonomy for call setup. Provisioning code wraps step errors with
// these so handlers can map them onto protocol replies without string checks.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrNotRegistered      = errors.New("user not registered")
	ErrEngineUnavailable  = errors.New("media engine unavailable")
	ErrEngineTimeout      = errors.New("media engine timeout")
	ErrProvisioningFailed = errors.New("provisioning failed")
	ErrDeliveryFailed     = errors.New("delivery failed")
)
