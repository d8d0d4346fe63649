// Package authflowrepo holds the short-lived state of single sign-on flows
// between the redirect to the authority and the callback.
package authflowrepo

import "time"

// DefaultTTL bounds how long a started sign-on may take to come back.
const DefaultTTL = 10 * time.Minute

type AuthFlowState struct {
	BrowserID    string // the browser that started the flow
	CodeVerifier string
	Nonce        string
	ReturnURL    string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *AuthFlowState) error
	Get(state string) (*AuthFlowState, error)
	Delete(state string) error
}
