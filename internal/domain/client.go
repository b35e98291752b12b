package domain

// Client is a registered OAuth client allowed to request tokens.
type Client struct {
	ID           string
	Name         string
	RedirectURIs []string
}

// AllowsRedirect reports whether uri is registered for the client.
// Matching is exact string comparison, no prefix or wildcard logic.
func (c Client) AllowsRedirect(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
