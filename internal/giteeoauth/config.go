package giteeoauth

import (
	"strings"
	"time"
)

const (
	DefaultFrontendURL     = "http://localhost"
	DefaultProfileRedirect = "/user/profile/gitee"

	defaultStateTTL               = 10 * time.Minute
	defaultBindTokenTTL           = 10 * time.Minute
	defaultAccessTokenFallbackTTL = 30 * 24 * time.Hour
)

// Config 在启动时构建一次，之后只读。
type Config struct {
	ClientID        string
	ClientSecret    string
	CallbackURL     string
	FrontendURL     string
	ProfileRedirect string

	StateTTL               time.Duration
	BindTokenTTL           time.Duration
	AccessTokenFallbackTTL time.Duration
}

func (c Config) withDefaults() Config {
	c.ClientID = strings.TrimSpace(c.ClientID)
	c.ClientSecret = strings.TrimSpace(c.ClientSecret)
	c.CallbackURL = strings.TrimSpace(c.CallbackURL)

	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")
	if c.FrontendURL == "" {
		c.FrontendURL = DefaultFrontendURL
	}
	c.ProfileRedirect = strings.TrimSpace(c.ProfileRedirect)
	if c.ProfileRedirect == "" || !strings.HasPrefix(c.ProfileRedirect, "/") {
		c.ProfileRedirect = DefaultProfileRedirect
	}
	if c.StateTTL <= 0 {
		c.StateTTL = defaultStateTTL
	}
	if c.BindTokenTTL <= 0 {
		c.BindTokenTTL = defaultBindTokenTTL
	}
	if c.AccessTokenFallbackTTL <= 0 {
		c.AccessTokenFallbackTTL = defaultAccessTokenFallbackTTL
	}
	return c
}
