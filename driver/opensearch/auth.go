package opensearch

import "net/http"

// Authenticator adds credentials to outgoing requests.
type Authenticator interface {
	Apply(req *http.Request)
}

// BasicAuth authenticates with a user name and password.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) Apply(req *http.Request) {
	req.SetBasicAuth(a.Username, a.Password)
}

// BearerAuth authenticates with a bearer token.
type BearerAuth struct {
	Token string
}

func (a BearerAuth) Apply(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+a.Token)
}
