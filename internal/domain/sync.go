package domain

// ResourceType names one category of remote entity synced independently.
type ResourceType string

const (
	ResourceContacts  ResourceType = "contacts"
	ResourceCampaigns ResourceType = "campaigns"
	ResourceEmails    ResourceType = "emails"
	ResourceSegments  ResourceType = "segments"
)

// SyncOrder is the fixed sequence in which a tenant's resources are synced.
var SyncOrder = []ResourceType{ResourceContacts, ResourceCampaigns, ResourceEmails, ResourceSegments}

// SyncResult is the outcome of syncing one resource type for one tenant.
type SyncResult struct {
	Success bool `json:"success"`
	Synced  int  `json:"synced"`
	Total   int  `json:"total"`
}

// SyncReport is the outcome of syncing every resource type for one tenant.
type SyncReport struct {
	Success bool                        `json:"success"`
	Results map[ResourceType]SyncResult `json:"results"`
}

// TenantSyncResult is one tenant's slot in a batch sync.
type TenantSyncResult struct {
	TenantID   string                      `json:"tenant_id"`
	TenantName string                      `json:"tenant_name"`
	Success    bool                        `json:"success"`
	Results    map[ResourceType]SyncResult `json:"results,omitempty"`
	Error      string                      `json:"error,omitempty"`
}

// BatchSyncReport is the outcome of syncing all active tenants. Success only
// means the batch ran to completion; check each tenant's entry.
type BatchSyncReport struct {
	Success bool               `json:"success"`
	Results []TenantSyncResult `json:"results"`
}

// Failed returns how many tenants in the batch failed.
func (b BatchSyncReport) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.Success {
			n++
		}
	}
	return n
}
