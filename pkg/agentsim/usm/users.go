package usm

import (
	"fmt"
	"sync"

	"github.com/mocksnmp/agentsim/models"
)

// Users is a read-mostly registry of configured USM sessions keyed by
// username, localized once against the simulator's engine ID at load time.
type Users struct {
	mu     sync.RWMutex
	byName map[string]*models.USMSession
}

// NewUsers creates an empty registry.
func NewUsers() *Users {
	return &Users{byName: make(map[string]*models.USMSession)}
}

// Load replaces the registry's contents, localizing each user's auth/priv
// passphrases against engineID.
func (u *Users) Load(configs []models.V3UserConfig, engineID string) error {
	next := make(map[string]*models.USMSession, len(configs))
	for _, c := range configs {
		session, err := buildSession(c, engineID)
		if err != nil {
			return fmt.Errorf("usm: user %q: %w", c.Username, err)
		}
		next[c.Username] = session
	}
	u.mu.Lock()
	u.byName = next
	u.mu.Unlock()
	return nil
}

// Get looks up a configured session by username.
func (u *Users) Get(username string) (*models.USMSession, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	s, ok := u.byName[username]
	return s, ok
}

func buildSession(c models.V3UserConfig, engineID string) (*models.USMSession, error) {
	session := &models.USMSession{
		Username:        c.Username,
		AllowedContexts: c.AllowedContexts,
		EngineID:        engineID,
	}

	if c.Auth != nil {
		proto, err := authProtoByName(c.Auth.Proto)
		if err != nil {
			return nil, err
		}
		key, err := LocalizedAuthKey(proto, c.Auth.Key, engineID)
		if err != nil {
			return nil, err
		}
		session.AuthProto = proto
		session.AuthKey = key
	}

	if c.Priv != nil {
		if c.Auth == nil {
			return nil, fmt.Errorf("privacy configured without authentication")
		}
		privProto, err := privProtoByName(c.Priv.Proto)
		if err != nil {
			return nil, err
		}
		key, err := LocalizedPrivKey(session.AuthProto, c.Priv.Key, engineID)
		if err != nil {
			return nil, err
		}
		session.PrivProto = privProto
		session.PrivKey = key
	}

	return session, nil
}
