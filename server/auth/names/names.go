package names

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/PocketSoftMine/SoftMine-PE/config"
	"github.com/PocketSoftMine/SoftMine-PE/server/auth"
)

const (
	MinNameLength = 3
	MaxNameLength = 16
)

// Rejection reasons sent to the client
const (
	ReasonInvalidName    = "disconnectionScreen.invalidName"
	ReasonBanned         = "You are banned"
	ReasonNotWhitelisted = "Server is white-listed"
)

var validName = regexp.MustCompile(`^[A-Za-z0-9_ ]+$`)

// NameAuth accepts logins by username: the name must be well formed, not
// banned, and whitelisted when a whitelist is set. Lookups are case-insensitive.
type NameAuth struct {
	mu        sync.RWMutex
	banned    map[string]struct{}
	whitelist map[string]struct{}
}

// Ensure NameAuth implements auth.Authenticator interface
var _ auth.Authenticator = (*NameAuth)(nil)

// New creates a name authenticator from the auth config section.
func New(conf config.Auth) *NameAuth {
	a := &NameAuth{
		banned:    make(map[string]struct{}, len(conf.Banned)),
		whitelist: make(map[string]struct{}, len(conf.Whitelist)),
	}
	for _, n := range conf.Banned {
		a.banned[normalize(n)] = struct{}{}
	}
	for _, n := range conf.Whitelist {
		a.whitelist[normalize(n)] = struct{}{}
	}
	return a
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidName reports whether name is an acceptable display name.
func ValidName(name string) bool {
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return false
	}
	if strings.TrimSpace(name) != name {
		return false
	}
	return validName.MatchString(name)
}

func (a *NameAuth) VerifyLogin(ctx context.Context, info auth.LoginInfo) (bool, string, error) {
	if err := ctx.Err(); err != nil {
		return false, "", err
	}
	if !ValidName(info.Username) {
		return false, ReasonInvalidName, nil
	}

	key := normalize(info.Username)
	a.mu.RLock()
	defer a.mu.RUnlock()
	if _, ok := a.banned[key]; ok {
		return false, ReasonBanned, nil
	}
	if len(a.whitelist) > 0 {
		if _, ok := a.whitelist[key]; !ok {
			return false, ReasonNotWhitelisted, nil
		}
	}
	return true, "", nil
}

// Ban adds name to the ban list.
func (a *NameAuth) Ban(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.banned[normalize(name)] = struct{}{}
}

// Pardon removes name from the ban list.
func (a *NameAuth) Pardon(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.banned, normalize(name))
}

// IsBanned reports whether name is banned.
func (a *NameAuth) IsBanned(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.banned[normalize(name)]
	return ok
}
