package models

import "time"

type ServiceRequest struct {
	ID                int64       `json:"id"`
	RequesterID       int64       `json:"requesterId"`
	Requester         *PublicUser `json:"requester,omitempty"`
	TypeOfWork        string      `json:"typeOfWork"`
	Budget            float64     `json:"budget"`
	Notes             string      `json:"notes"`
	Status            string      `json:"status"` // Waiting, Working, Complete, Cancelled
	TargetProviderID  *int64      `json:"targetProviderId,omitempty"`
	ServiceProviderID *int64      `json:"serviceProviderId,omitempty"`
	ETA               *time.Time  `json:"eta,omitempty"`
	ExpiresAt         time.Time   `json:"expiresAt"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
	Version           int64       `json:"version"`
}

// IsTargetedAt reports whether the offer is addressed to userID.
func (r *ServiceRequest) IsTargetedAt(userID int64) bool {
	return r.TargetProviderID != nil && *r.TargetProviderID == userID
}

// IsParty reports whether userID is the requester, target or assigned provider.
func (r *ServiceRequest) IsParty(userID int64) bool {
	if r.RequesterID == userID || r.IsTargetedAt(userID) {
		return true
	}
	return r.ServiceProviderID != nil && *r.ServiceProviderID == userID
}

// Parties returns the distinct user ids involved in the request.
func (r *ServiceRequest) Parties() []int64 {
	ids := []int64{r.RequesterID}
	for _, p := range []*int64{r.TargetProviderID, r.ServiceProviderID} {
		if p == nil {
			continue
		}
		dup := false
		for _, id := range ids {
			if id == *p {
				dup = true
				break
			}
		}
		if !dup {
			ids = append(ids, *p)
		}
	}
	return ids
}

// RedactFor hides provider references that do not belong to viewerID.
func (r *ServiceRequest) RedactFor(viewerID int64) *ServiceRequest {
	cp := *r
	if cp.TargetProviderID != nil && *cp.TargetProviderID != viewerID {
		cp.TargetProviderID = nil
	}
	if cp.ServiceProviderID != nil && *cp.ServiceProviderID != viewerID {
		cp.ServiceProviderID = nil
	}
	return &cp
}

// ServiceRequestFilter drives the admin listing.
type ServiceRequestFilter struct {
	Page   int
	Limit  int
	Skill  string
	Status string
	Sort   string // newest, oldest, budget_asc, budget_desc
}

// Normalize clamps paging values and defaults the sort order.
func (f *ServiceRequestFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	switch f.Sort {
	case "oldest", "budget_asc", "budget_desc":
	default:
		f.Sort = "newest"
	}
}

// ServiceRequestPage is one page of the admin listing.
type ServiceRequestPage struct {
	Count      int               `json:"count"`
	TotalPages int               `json:"totalPages"`
	Requests   []*ServiceRequest `json:"requests"`
}
