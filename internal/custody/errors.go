package custody

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrAccessDenied is returned when a non-owner calls an owner-only operation.
var ErrAccessDenied = errors.New("Only the contract owner can call this function")

// ErrNoLinkToken is returned by the link operations when no auxiliary token is configured.
var ErrNoLinkToken = errors.New("link token not configured")

// ErrZeroPool is the cause of a ConstructionError when the registry resolves no pool.
var ErrZeroPool = errors.New("registry resolved zero pool address")

// ConstructionError reports why a Module could not be created.
type ConstructionError struct {
	Registry common.Address
	Err      error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("resolve pool from registry %s: %v", e.Registry.Hex(), e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}
