package remote

import "net/http"

// Signer decorates outgoing requests, e.g. with an anti-CSRF header.
type Signer interface {
	Sign(req *http.Request) error
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(req *http.Request) error

func (f SignerFunc) Sign(req *http.Request) error { return f(req) }

// CSRFSigner sends a Django-style X-CSRFToken header, plus the matching
// csrftoken cookie, when Token is set.
type CSRFSigner struct {
	Token string
}

func (s CSRFSigner) Sign(req *http.Request) error {
	if s.Token == "" {
		return nil
	}
	req.Header.Set("X-CSRFToken", s.Token)
	req.AddCookie(&http.Cookie{Name: "csrftoken", Value: s.Token})
	return nil
}
