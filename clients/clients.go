package clients

import "golang.org/x/crypto/bcrypt"

type ClientType string

const (
	ClientTypeConfidential ClientType = "confidential" // Can keep secrets (the web server)
	ClientTypePublic       ClientType = "public"       // Cannot keep secrets (the CLI)
)

// Client is an application allowed to call the authority endpoints.
type Client struct {
	ID          string     `json:"id"`
	Type        ClientType `json:"type"` // public or confidential
	Description string     `json:"description"`
	SecretHash  string     `json:"-"`
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.Type == ClientTypePublic
}

// Authenticate checks the presented secret. Public clients have none.
func (c *Client) Authenticate(secret string) bool {
	if c.IsPublic() {
		return true
	}
	if c.SecretHash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.SecretHash), []byte(secret)) == nil
}

// HashSecret hashes a confidential client's secret for storage.
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}
