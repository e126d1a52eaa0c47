// Package validation checks identifiers that callers choose for themselves.
package validation

import (
	"fmt"
	"regexp"
)

const (
	minDeployKeyLen = 3
	// Matches the width of app.deploy_key.
	maxDeployKeyLen = 64
)

// Lowercase alphanumeric runs joined by single hyphens. A deploy key becomes
// the first path segment of the published site, so it must be URL-safe as is.
var deployKeyPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// First path segments the site host serves itself.
var siteRoutes = map[string]bool{
	"admin":   true,
	"api":     true,
	"app":     true,
	"assets":  true,
	"deploy":  true,
	"health":  true,
	"metrics": true,
	"preview": true,
	"static":  true,
	"swagger": true,
	"www":     true,
}

// ValidateDeployKey reports why key cannot publish an app, or nil when it can.
func ValidateDeployKey(key string) error {
	if n := len(key); n < minDeployKeyLen || n > maxDeployKeyLen {
		return fmt.Errorf("deploy key length must be between %d and %d", minDeployKeyLen, maxDeployKeyLen)
	}
	if !deployKeyPattern.MatchString(key) {
		return fmt.Errorf("deploy key may only use lowercase letters and digits separated by single hyphens")
	}
	if siteRoutes[key] {
		return fmt.Errorf("deploy key %q collides with a site route", key)
	}
	return nil
}
