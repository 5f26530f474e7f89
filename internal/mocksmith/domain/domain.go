// Package domain defines the configuration entities managed by mocksmith:
// mock endpoint mappings, workspaces, and user accounts.
//
// These types are shared between the assistant core, the SQLite store, and
// the mock-engine adapter. Identity fields (Mapping.ID, Mapping.Workspace)
// are owned by the store; generated content must never alter them.
package domain

import "time"

// MatchType enumerates the supported request-matching operators for header
// and body matchers. The values are the wire names the mock engine (and the
// oracle) must use.
type MatchType string

const (
	MatchEqualTo  MatchType = "equalTo"
	MatchMatches  MatchType = "matches"
	MatchContains MatchType = "contains"
	MatchAbsent   MatchType = "absent"
	// MatchExists asserts only that the header is present; the pattern is
	// always the empty string.
	MatchExists MatchType = "exists"
)

// ValidMatchType reports whether s is one of the enumerated match types.
func ValidMatchType(s string) bool {
	switch MatchType(s) {
	case MatchEqualTo, MatchMatches, MatchContains, MatchAbsent, MatchExists:
		return true
	}
	return false
}

// DefaultPriority is applied to mappings created without an explicit
// priority. Lower values win when several mappings match a request.
const DefaultPriority = 5

// Matcher is a single request-matching rule applied to a header value or a
// request body. For MatchExists and MatchAbsent the Pattern is empty.
type Matcher struct {
	MatchType MatchType `json:"matchType"`
	Pattern   string    `json:"pattern"`
}

// DelayMode enumerates the response-delay strategies a mapping can carry.
type DelayMode string

const (
	DelayNone    DelayMode = "none"
	DelayFixed   DelayMode = "fixed"
	DelayUniform DelayMode = "uniform"
)

// Delay describes an artificial response delay. Timing behaviour is owned by
// the mock engine; mocksmith only stores the configuration.
type Delay struct {
	Mode        DelayMode `json:"mode"`
	FixedMillis int       `json:"fixedMillis,omitempty"`
	MinMillis   int       `json:"minMillis,omitempty"`
	MaxMillis   int       `json:"maxMillis,omitempty"`
}

// Mapping is a simulated API endpoint: a request-matching rule plus the
// canned response the engine serves when the rule matches.
type Mapping struct {
	// ID is the stable identity of the mapping. Assigned by mocksmith at
	// creation time (UUID); never taken from oracle output.
	ID string `json:"id"`
	// Workspace is the namespace the mapping belongs to. Like ID it is
	// re-imposed after generation and only changed by an explicit move.
	Workspace string `json:"workspace"`

	Name     string   `json:"name"`
	Method   string   `json:"method"`
	Path     string   `json:"path"`
	Priority int      `json:"priority"`
	Enabled  bool     `json:"enabled"`
	Tags     []string `json:"tags,omitempty"`

	// Headers are exact-match request headers (name → literal value).
	Headers map[string]string `json:"headers,omitempty"`
	// HeaderMatchers are pattern-based request headers (name → matcher).
	// Kept separate from Headers so an existence-only check never collapses
	// into a literal value.
	HeaderMatchers map[string]Matcher `json:"headerMatchers,omitempty"`
	// BodyMatcher optionally matches the request body.
	BodyMatcher *Matcher `json:"bodyMatcher,omitempty"`

	ResponseStatus  int               `json:"responseStatus"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	// ResponseBody may contain engine templating expressions such as
	// {{request.path}} or {{jsonPath request.body '$.field'}}.
	ResponseBody string `json:"responseBody,omitempty"`

	Delay *Delay `json:"delay,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a deep copy of the mapping. Used by in-memory stores and by
// the bulk updater so callers never share mutable maps.
func (m *Mapping) Clone() *Mapping {
	cp := *m
	if m.Tags != nil {
		cp.Tags = append([]string(nil), m.Tags...)
	}
	if m.Headers != nil {
		cp.Headers = make(map[string]string, len(m.Headers))
		for k, v := range m.Headers {
			cp.Headers[k] = v
		}
	}
	if m.HeaderMatchers != nil {
		cp.HeaderMatchers = make(map[string]Matcher, len(m.HeaderMatchers))
		for k, v := range m.HeaderMatchers {
			cp.HeaderMatchers[k] = v
		}
	}
	if m.ResponseHeaders != nil {
		cp.ResponseHeaders = make(map[string]string, len(m.ResponseHeaders))
		for k, v := range m.ResponseHeaders {
			cp.ResponseHeaders[k] = v
		}
	}
	if m.BodyMatcher != nil {
		bm := *m.BodyMatcher
		cp.BodyMatcher = &bm
	}
	if m.Delay != nil {
		d := *m.Delay
		cp.Delay = &d
	}
	return &cp
}

// Workspace is a named namespace grouping mappings.
type Workspace struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Role enumerates user account roles.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ValidRole reports whether s is one of the enumerated roles.
func ValidRole(s string) bool {
	switch Role(s) {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// User is an operator account. PasswordHash is a bcrypt hash; the plaintext
// never leaves the create/update path.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
