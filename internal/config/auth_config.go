package config

import "time"

type Auth struct{}

var _ AuthConfig = Auth{}

// GetAuthority is local or remote.
func (Auth) GetAuthority() string {
	return GetEnv("AUTHORITY", "local")
}

func (Auth) GetAuthTimeout() time.Duration {
	return getDuration("AUTH_TIMEOUT", 10*time.Second)
}

func (Auth) GetMaxLoginAttempts() int {
	return getInt("MAX_LOGIN_ATTEMPTS", 5)
}

func (Auth) GetLoginAttemptWindow() time.Duration {
	return getDuration("LOGIN_ATTEMPT_WINDOW", 15*time.Minute)
}

// GetRateLimiter is memory or redis.
func (Auth) GetRateLimiter() string {
	return GetEnv("RATE_LIMITER", "memory")
}

func (Auth) GetTokenTTL() time.Duration {
	return getDuration("TOKEN_TTL", time.Hour)
}

// GetTokenSecret signs local access tokens. Empty means generate one at
// startup, which invalidates every token on restart.
func (Auth) GetTokenSecret() string {
	return GetEnv("TOKEN_SECRET", "")
}

func (Auth) GetTokenIssuer() string {
	return GetEnv("TOKEN_ISSUER", EnvVars{}.GetBaseURL())
}

func (Auth) GetDemoUserEmail() string {
	return GetEnv("DEMO_USER_EMAIL", "demo@example.com")
}

// GetDemoUserPassword is empty unless set; the server then generates and
// logs one.
func (Auth) GetDemoUserPassword() string {
	return GetEnv("DEMO_USER_PASSWORD", "")
}

func (Auth) GetExposeAuthorityEndpoints() bool {
	return getBool("EXPOSE_AUTHORITY_ENDPOINTS", false)
}

func (Auth) GetOIDCIssuer() string {
	return GetEnv("OIDC_ISSUER", "")
}

func (Auth) GetClientID() string {
	return GetEnv("CLIENT_ID", "wallet-web")
}

func (Auth) GetClientSecret() string {
	return GetEnv("CLIENT_SECRET", "")
}

func (Auth) GetTokenURL() string {
	return GetEnv("TOKEN_URL", "")
}

func (Auth) GetIntrospectionURL() string {
	return GetEnv("INTROSPECTION_URL", "")
}

func (Auth) GetRevocationURL() string {
	return GetEnv("REVOCATION_URL", "")
}
