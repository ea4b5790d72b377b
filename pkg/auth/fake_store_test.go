package auth

import (
	"sort"
	"sync"
)

// fakeStore is an in-memory CredentialStore with per-operation error injection
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	stores   int

	storeErr error
	listErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: make(map[string]Account)}
}

func newFakeManager() (*Manager, *fakeStore) {
	store := newFakeStore()
	return NewManagerWithStores(store), store
}

func (f *fakeStore) Store(account *Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.storeErr != nil {
		return f.storeErr
	}
	if account == nil || account.Username == "" {
		return ErrInvalidCredentials
	}
	f.accounts[account.Username] = *account
	f.stores++
	return nil
}

func (f *fakeStore) Retrieve(username string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	account, ok := f.accounts[username]
	if !ok {
		return nil, ErrCredentialsNotFound
	}
	return &account, nil
}

func (f *fakeStore) List() ([]*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listErr != nil {
		return nil, f.listErr
	}
	names := make([]string, 0, len(f.accounts))
	for name := range f.accounts {
		names = append(names, name)
	}
	sort.Strings(names)

	accounts := make([]*Account, 0, len(names))
	for _, name := range names {
		account := f.accounts[name]
		accounts = append(accounts, &account)
	}
	return accounts, nil
}

func (f *fakeStore) Delete(username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.accounts[username]; !ok {
		return ErrCredentialsNotFound
	}
	delete(f.accounts, username)
	return nil
}

func (f *fakeStore) Exists(username string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.accounts[username]
	return ok
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.accounts)
}
