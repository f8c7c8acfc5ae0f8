package rivers

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the rivers service. Callers branch with errors.Is.
var (
	// ErrQuotaExceeded indicates a creation was attempted with no remaining
	// account quota. Nothing is committed when this is returned.
	ErrQuotaExceeded = errors.New("rivers: quota exceeded")
	// ErrValidation indicates a request carried an invalid name, visibility
	// flag or layout.
	ErrValidation = errors.New("rivers: validation failed")
	// ErrNotFound indicates a referenced river, channel, option or
	// collaborator does not resolve.
	ErrNotFound = errors.New("rivers: not found")
	// ErrInvalidToken indicates a public token mismatch, or that the river
	// has no token set.
	ErrInvalidToken = errors.New("rivers: invalid token")
	// ErrRiverFull indicates a lifetime extension was attempted on a river
	// that reached its drop quota.
	ErrRiverFull = errors.New("rivers: river is full")
)

// ServiceError carries an operation-scoped failure code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation-scoped failure code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew     = "rivers.service.new"
	opCreateRiver    = "rivers.create"
	opDeleteRiver    = "rivers.delete"
	opUpdateRiver    = "rivers.update"
	opGetRiver       = "rivers.get"
	opListRivers     = "rivers.list"
	opRiverSummary   = "rivers.summary"
	opExtendLifetime = "rivers.extend_lifetime"
	opSetToken       = "rivers.set_token"
	opValidateToken  = "rivers.validate_token"
	opGetDroplets    = "rivers.get_droplets"
	opDropletsSince  = "rivers.get_droplets_since"
	opMaxDropletID   = "rivers.max_droplet_id"
	opPermissions    = "rivers.permissions"
	opChannels       = "rivers.channels"
	opCollaborators  = "rivers.collaborators"
	opSubscriptions  = "rivers.subscriptions"
	opSearch         = "rivers.search"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}
