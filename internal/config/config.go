package config

import (
	"time"

	"github.com/joho/godotenv"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	AuthConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetBaseURL() string
	GetDataFolder() string
	GetEnv() string
	IsDev() bool
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() []string
	GetAllowedHeaders() []string
}

type SessionConfig interface {
	GetLoginPath() string
	GetLandingPath() string
	GetRouteTableFile() string
	GetSessionSlot() string
	GetRedisURL() string
	GetBrowserIdleTimeout() time.Duration
	GetSweepInterval() time.Duration
	GetEventsKeepAlive() time.Duration
	GetRememberMeMaxAge() time.Duration
}

type AuthConfig interface {
	GetAuthority() string
	GetAuthTimeout() time.Duration
	GetMaxLoginAttempts() int
	GetLoginAttemptWindow() time.Duration
	GetRateLimiter() string
	GetTokenTTL() time.Duration
	GetTokenSecret() string
	GetTokenIssuer() string
	GetDemoUserEmail() string
	GetDemoUserPassword() string
	GetExposeAuthorityEndpoints() bool
	GetOIDCIssuer() string
	GetClientID() string
	GetClientSecret() string
	GetTokenURL() string
	GetIntrospectionURL() string
	GetRevocationURL() string
}

type mainConfig struct {
	EnvVars
	Cors
	Session
	Auth
}

// New loads .env when present; real environment variables take precedence.
func New() Config {
	_ = godotenv.Load(".env")
	return mainConfig{}
}
