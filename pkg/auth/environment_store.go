package auth

import (
	"os"
	"time"
)

const (
	EnvUsername = "INSTAGRAM_USERNAME"
	EnvPassword = "INSTAGRAM_PASSWORD"
)

// EnvironmentStore implements CredentialStore using environment variables.
// It is read only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(account *Account) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment credentials. A non-empty username must
// match INSTAGRAM_USERNAME.
func (e *EnvironmentStore) Retrieve(username string) (*Account, error) {
	envUser := os.Getenv(EnvUsername)
	envPass := os.Getenv(EnvPassword)

	if envUser == "" || envPass == "" {
		return nil, ErrCredentialsNotFound
	}
	if username != "" && username != envUser {
		return nil, ErrCredentialsNotFound
	}

	return &Account{
		Username:     envUser,
		Password:     envPass,
		LastModified: time.Now(),
	}, nil
}

// List returns a single account if environment variables are set
func (e *EnvironmentStore) List() ([]*Account, error) {
	account, err := e.Retrieve("")
	if err != nil {
		return []*Account{}, nil
	}
	return []*Account{account}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(username string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist for username
func (e *EnvironmentStore) Exists(username string) bool {
	_, err := e.Retrieve(username)
	return err == nil
}
