package domain

import (
	"errors"
	"strings"
)

// DefaultDeviceID is the sentinel used when a client does not identify its
// device. All such clients share one session slot per user.
const DefaultDeviceID = "unknown-device"

var (
	ErrBlankUsername = errors.New("domain: username must not be blank")
	ErrBlankPassword = errors.New("domain: password must not be blank")
)

// Credentials carries a sign-in attempt. Never persisted, never logged.
type Credentials struct {
	Username string
	Password string
	DeviceID string
}

// NewCredentials validates and normalizes a sign-in attempt.
func NewCredentials(username, password, deviceID string) (Credentials, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Credentials{}, ErrBlankUsername
	}
	if password == "" {
		return Credentials{}, ErrBlankPassword
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		deviceID = DefaultDeviceID
	}
	return Credentials{Username: username, Password: password, DeviceID: deviceID}, nil
}

// AuthenticatedUser is the canonical profile produced by a directory backend.
// Two values describe the same principal iff their UserIDs match, regardless
// of attribute drift between lookups.
type AuthenticatedUser struct {
	UserID    string
	Username  string
	Email     string
	FirstName string
	LastName  string
	Roles     []string
	Groups    []string
	Enabled   bool
}

// SamePrincipal reports whether both profiles identify the same directory
// entry.
func (u AuthenticatedUser) SamePrincipal(other AuthenticatedUser) bool {
	return u.UserID != "" && u.UserID == other.UserID
}
