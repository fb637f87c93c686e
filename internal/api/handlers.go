package api

import (
	"github.com/ignite/mautic-sync/internal/service/dashboard"
	"github.com/ignite/mautic-sync/internal/service/datasync"
	"github.com/ignite/mautic-sync/internal/service/tenant"
)

// Handlers contains all HTTP handlers.
type Handlers struct {
	tenants   *tenant.Service
	sync      *datasync.Service
	dashboard *dashboard.Service
	health    *HealthChecker
}

// NewHandlers creates a new Handlers instance. health may be nil, in which
// case /health reports only liveness.
func NewHandlers(tenants *tenant.Service, sync *datasync.Service, dash *dashboard.Service, health *HealthChecker) *Handlers {
	if health == nil {
		health = NewHealthChecker(nil, nil)
	}
	return &Handlers{tenants: tenants, sync: sync, dashboard: dash, health: health}
}
