package config

import "time"

type Session struct{}

var _ SessionConfig = Session{}

func (Session) GetLoginPath() string {
	return GetEnv("LOGIN_PATH", "/login")
}

func (Session) GetLandingPath() string {
	return GetEnv("LANDING_PATH", "/dash")
}

// GetRouteTableFile is a YAML route table; empty means the built-in table.
func (Session) GetRouteTableFile() string {
	return GetEnv("ROUTE_TABLE_FILE", "")
}

// GetSessionSlot is one of memory, bolt or redis.
func (Session) GetSessionSlot() string {
	return GetEnv("SESSION_SLOT", "memory")
}

func (Session) GetRedisURL() string {
	return GetEnv("REDIS_URL", "redis://localhost:6379/0")
}

func (Session) GetBrowserIdleTimeout() time.Duration {
	return getDuration("BROWSER_IDLE_TIMEOUT", 30*time.Minute)
}

func (Session) GetSweepInterval() time.Duration {
	return getDuration("SWEEP_INTERVAL", 15*time.Second)
}

func (Session) GetEventsKeepAlive() time.Duration {
	return getDuration("EVENTS_KEEPALIVE", 25*time.Second)
}

// GetRememberMeMaxAge caps how long a remembered browser keeps its cookie.
// Sessions that expire sooner take the cookie with them.
func (Session) GetRememberMeMaxAge() time.Duration {
	return getDuration("REMEMBER_ME_MAX_AGE", 30*24*time.Hour)
}
