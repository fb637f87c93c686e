package datasync

import (
	"errors"
	"fmt"

	"github.com/ignite/mautic-sync/internal/domain"
)

// ErrSyncInProgress is returned when another process holds the tenant's sync lock.
var ErrSyncInProgress = errors.New("sync already in progress for tenant")

// ResourceError names the resource whose sync aborted a full-tenant run.
type ResourceError struct {
	Resource domain.ResourceType
	Err      error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("sync %s: %v", e.Resource, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
