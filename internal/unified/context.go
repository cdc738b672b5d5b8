package unified

// Context is the mutable scheme context threaded through a single parse.
// It is owned by one scanning loop and never shared; a fresh context is
// created per parse invocation.
type Context struct {
	AMC        string
	Folio      string
	PAN        string
	SchemeName string
	ISIN       string
	Registrar  string
}

// ResetScheme clears the scheme-scoped fields. Called when the folio
// changes: a new folio opens a new scheme section, and carrying the old
// scheme name or identifier forward would attribute the next scheme's
// records to the previous one.
func (c *Context) ResetScheme() {
	c.SchemeName = ""
	c.ISIN = ""
	c.Registrar = ""
}

// ResetForISIN clears name and registrar when a new identifier is
// encountered under the same folio. Multiple schemes can share a folio;
// the identifier is the real scheme boundary.
func (c *Context) ResetForISIN() {
	c.SchemeName = ""
	c.Registrar = ""
}
