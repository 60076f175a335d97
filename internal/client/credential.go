package client

import "net/http"

// Credential attaches proof of identity to outgoing requests.
type Credential interface {
	Authorize(req *http.Request)
	UserID() string
}

// IdentifierCredential presents the bare user identifier returned by login
// as the Authorization header value, with no scheme prefix.
type IdentifierCredential string

func (c IdentifierCredential) Authorize(req *http.Request) {
	req.Header.Set("Authorization", string(c))
}

func (c IdentifierCredential) UserID() string {
	return string(c)
}
