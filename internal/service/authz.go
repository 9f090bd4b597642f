package service

import "strings"

// Authorizer answers whether an authenticated email may use the portal API.
// The set comes from configuration; authentication itself happens upstream in
// the identity provider, we only see the resulting email.
type Authorizer struct {
	allowed map[string]struct{}
}

func NewAuthorizer(emails []string) *Authorizer {
	a := &Authorizer{allowed: make(map[string]struct{}, len(emails))}
	for _, e := range emails {
		a.allowed[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return a
}

func (a *Authorizer) IsAuthorized(email string) bool {
	_, ok := a.allowed[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
