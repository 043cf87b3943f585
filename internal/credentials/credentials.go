// Package credentials holds the static OAuth client credentials per platform.
package credentials

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/underscoreTells/streaming-enhancement/internal/errors"
)

// Credential is one platform's OAuth client registration.
type Credential struct {
	Platform     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// Repository resolves credentials for a platform. A missing platform surfaces
// as a configuration error naming the platform, never as a nil dereference.
type Repository interface {
	GetCredential(ctx context.Context, platform string) (*Credential, error)
}

// NotFoundError builds the configuration error for an unregistered platform.
func NotFoundError(platform string) *errors.Error {
	display := platform
	if display != "" {
		display = strings.ToUpper(display[:1]) + display[1:]
	}
	return errors.Configuration(fmt.Sprintf("%s OAuth credentials not found", display)).
		WithContext("platform", platform)
}

// StaticRepository serves credentials registered at startup, typically from
// environment configuration.
type StaticRepository struct {
	mu          sync.RWMutex
	credentials map[string]*Credential
}

func NewStaticRepository() *StaticRepository {
	return &StaticRepository{credentials: make(map[string]*Credential)}
}

// Register adds or replaces the credential for its platform.
func (r *StaticRepository) Register(cred Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials[cred.Platform] = &cred
}

func (r *StaticRepository) GetCredential(_ context.Context, platform string) (*Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cred, ok := r.credentials[platform]
	if !ok {
		return nil, NotFoundError(platform)
	}
	return cred, nil
}
