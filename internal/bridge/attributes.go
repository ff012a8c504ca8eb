package bridge

import (
	"net/http"
	"strings"
)

// Federation attribute names as released by the Shibboleth SP.
const (
	AttrMail       = "mail"
	AttrEPPN       = "eppn"
	AttrCN         = "cn"
	AttrGivenName  = "givenName"
	AttrSurname    = "sn"
	AttrIsMemberOf = "isMemberOf"
)

// Environ is the request environment the federation layer populated.
// Get returns "" for missing attributes.
type Environ interface {
	Get(name string) string
}

// EnvMap is an Environ over a plain map.
type EnvMap map[string]string

// Get implements Environ.
func (m EnvMap) Get(name string) string {
	return m[name]
}

// HeaderEnviron reads attributes exported as request headers
// (ShibUseHeaders), optionally behind a prefix such as "X-Shib-".
type HeaderEnviron struct {
	Header http.Header
	Prefix string
}

// Get implements Environ.
func (h HeaderEnviron) Get(name string) string {
	return strings.TrimSpace(h.Header.Get(h.Prefix + name))
}

// Attributes are the identity claims asserted for one request.
type Attributes struct {
	Mail   string
	EPPN   string
	CN     string
	Groups []string
}

// ExtractAttributes reads the federation attributes from env. It returns
// false when no mail attribute is present, which means the federation
// layer did not authenticate the request.
//
// A missing cn is built from givenName and sn joined by a space, with the
// result trimmed. When only one of the two is present the cn is that name
// alone, without a leading or trailing space.
func ExtractAttributes(env Environ) (*Attributes, bool) {
	mail := env.Get(AttrMail)
	if mail == "" {
		return nil, false
	}

	cn := env.Get(AttrCN)
	if cn == "" {
		cn = strings.TrimSpace(env.Get(AttrGivenName) + " " + env.Get(AttrSurname))
	}

	return &Attributes{
		Mail:   mail,
		EPPN:   env.Get(AttrEPPN),
		CN:     cn,
		Groups: ParseGroups(env.Get(AttrIsMemberOf)),
	}, true
}

// ParseGroups splits a semicolon-delimited isMemberOf value. Blank
// entries are dropped.
func ParseGroups(raw string) []string {
	if raw == "" {
		return nil
	}
	var groups []string
	for _, g := range strings.Split(raw, ";") {
		if g = strings.TrimSpace(g); g != "" {
			groups = append(groups, g)
		}
	}
	return groups
}
