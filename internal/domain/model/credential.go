package model

// Credential is one upstream API credential managed by the rotation core.
// Pool groups interchangeable credentials behind a single caller token; the
// empty string is the implicit single-tenant pool. LastUsed is milliseconds
// since the Unix epoch, 0 for a credential that has never been leased.
//
// Only LastUsed is mutable. Rows are provisioned out-of-band (keyadmin) and
// never deleted by the proxy. Secret must never appear in logs.
type Credential struct {
	ID       int64
	Pool     string
	BaseURL  string
	Secret   string
	LastUsed int64
}
