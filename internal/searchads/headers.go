package searchads

import (
	"net/http"

	"searchads-tap/internal/domain"
)

// Headers carries the pre-built credentials attached to every API call.
// Tokens are never refreshed here.
type Headers struct {
	AccessToken string
	OrgID       string
}

// Validate checks that both values are present.
func (h Headers) Validate() error {
	if h.AccessToken == "" {
		return domain.ErrValidation("search ads access token is required")
	}
	if h.OrgID == "" {
		return domain.ErrValidation("search ads org id is required")
	}
	return nil
}

// Apply sets the Authorization and X-AP-Context headers on hdr.
func (h Headers) Apply(hdr http.Header) {
	if h.AccessToken != "" {
		hdr.Set("Authorization", "Bearer "+h.AccessToken)
	}
	if h.OrgID != "" {
		hdr.Set("X-AP-Context", "orgId="+h.OrgID)
	}
}
