package auth

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCredentialManager(t *testing.T) {
	manager, store := newFakeManager()

	account := &Account{
		Username: "testuser",
		Password: "correct horse battery staple",
	}

	if err := manager.Store(account); err != nil {
		t.Errorf("Failed to store account: %v", err)
	}
	if account.LastModified.IsZero() {
		t.Error("Store should stamp LastModified")
	}

	retrieved, err := manager.Retrieve("testuser")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}
	if retrieved.Username != account.Username {
		t.Errorf("Username mismatch: got %s, want %s", retrieved.Username, account.Username)
	}
	if retrieved.Password != account.Password {
		t.Errorf("Password mismatch: got %s, want %s", retrieved.Password, account.Password)
	}

	accounts, err := manager.List()
	if err != nil {
		t.Errorf("Failed to list accounts: %v", err)
	}
	if len(accounts) != 1 {
		t.Errorf("Expected one account in list, got %d", len(accounts))
	}

	sanitized := SanitizeAccount(account)
	if sanitized.Password == account.Password {
		t.Error("Password should be masked")
	}
	if sanitized.Username != account.Username {
		t.Error("Username should not be masked")
	}

	if err := manager.Delete("testuser"); err != nil {
		t.Errorf("Failed to delete account: %v", err)
	}
	if _, err := manager.Retrieve("testuser"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound after deletion, got %v", err)
	}
	if store.count() != 0 {
		t.Errorf("Expected 0 accounts after deletion, got %d", store.count())
	}
}

func TestManagerStoreValidation(t *testing.T) {
	manager, store := newFakeManager()

	if err := manager.Store(&Account{Password: "pw"}); err == nil {
		t.Error("Expected error for missing username")
	}
	if err := manager.Store(&Account{Username: "u"}); err == nil {
		t.Error("Expected error for missing password")
	}
	if err := manager.Store(nil); err == nil {
		t.Error("Expected error for nil account")
	}
	if store.stores != 0 {
		t.Errorf("Invalid accounts should not reach the store, got %d writes", store.stores)
	}
}

func TestManagerFallsBackToNextStore(t *testing.T) {
	broken := newFakeStore()
	broken.storeErr = errors.New("keychain locked")
	working := newFakeStore()

	manager := NewManagerWithStores(broken, working)
	if err := manager.Store(&Account{Username: "u", Password: "pw"}); err != nil {
		t.Fatalf("Expected fallback store to accept account: %v", err)
	}
	if working.count() != 1 {
		t.Errorf("Expected account in fallback store, got %d", working.count())
	}

	working.storeErr = errors.New("disk full")
	err := manager.Store(&Account{Username: "v", Password: "pw"})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected last store error, got %v", err)
	}
}

func TestManagerListPrefersNewest(t *testing.T) {
	older := newFakeStore()
	newer := newFakeStore()
	now := time.Now()

	_ = older.Store(&Account{Username: "same", Password: "old", LastModified: now.Add(-time.Hour)})
	_ = newer.Store(&Account{Username: "same", Password: "new", LastModified: now})
	_ = older.Store(&Account{Username: "other", Password: "x", LastModified: now.Add(-2 * time.Hour)})

	accounts, err := NewManagerWithStores(older, newer).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(accounts))
	}
	if accounts[0].Username != "same" || accounts[0].Password != "new" {
		t.Errorf("Expected newest copy first, got %+v", accounts[0])
	}
}

func TestRetrieveDefault(t *testing.T) {
	t.Setenv(EnvUsername, "")
	t.Setenv(EnvPassword, "")

	store := newFakeStore()
	manager := NewManagerWithStores(store, NewEnvironmentStore())

	if _, err := manager.RetrieveDefault(); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}

	_ = store.Store(&Account{Username: "saved", Password: "pw", LastModified: time.Now()})
	account, err := manager.RetrieveDefault()
	if err != nil || account.Username != "saved" {
		t.Errorf("Expected saved account, got %v, %v", account, err)
	}

	t.Setenv(EnvUsername, "fromenv")
	t.Setenv(EnvPassword, "envpw")
	account, err = manager.RetrieveDefault()
	if err != nil || account.Username != "fromenv" {
		t.Errorf("Expected environment account to win, got %v, %v", account, err)
	}
}

func TestEncryptedFileStore(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "creds.enc")
	t.Setenv(EnvPassphrase, "test_passphrase_123")

	store, err := NewEncryptedFileStore(file)
	if err != nil {
		t.Fatalf("Failed to create encrypted store: %v", err)
	}

	account := &Account{Username: "encrypted_user", Password: "plaintext_password_value"}
	if err := store.Store(account); err != nil {
		t.Errorf("Failed to store in encrypted file: %v", err)
	}

	retrieved, err := store.Retrieve("encrypted_user")
	if err != nil {
		t.Fatalf("Failed to retrieve from encrypted file: %v", err)
	}
	if retrieved.Password != account.Password {
		t.Errorf("Password mismatch after encryption/decryption")
	}

	// File should not contain plaintext credentials
	fileContent, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(fileContent, []byte("plaintext_password_value")) {
		t.Error("File contains plaintext password")
	}
	if bytes.Contains(fileContent, []byte("encrypted_user")) {
		t.Error("File contains plaintext username")
	}

	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected file mode 0600, got %o", perm)
	}

	if !store.Exists("encrypted_user") {
		t.Error("Account should exist")
	}
	if err := store.Delete("encrypted_user"); err != nil {
		t.Errorf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Error("Expected file to be removed with its last account")
	}
	if err := store.Delete("encrypted_user"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound, got %v", err)
	}
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "creds.enc")

	t.Setenv(EnvPassphrase, "first")
	store, err := NewEncryptedFileStore(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Account{Username: "u", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvPassphrase, "second")
	other, err := NewEncryptedFileStore(file)
	if err != nil {
		t.Fatal(err)
	}
	_, err = other.Retrieve("u")
	if err == nil || errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected decryption error, got %v", err)
	}
}

func TestEncryptedFileStoreGeneratesPassphrase(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPassphrase, "")

	store, err := NewEncryptedFileStore(filepath.Join(dir, "creds.enc"))
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Store(&Account{Username: "u", Password: "pw"}); err != nil {
		t.Fatal(err)
	}

	generated, err := os.ReadFile(filepath.Join(dir, ".passphrase"))
	if err != nil || len(generated) == 0 {
		t.Fatalf("Expected generated passphrase file: %v", err)
	}

	// A second store in the same directory reads the same passphrase
	again, err := NewEncryptedFileStore(filepath.Join(dir, "creds.enc"))
	if err != nil {
		t.Fatal(err)
	}
	account, err := again.Retrieve("u")
	if err != nil || account.Password != "pw" {
		t.Errorf("Expected to decrypt with saved passphrase, got %v, %v", account, err)
	}
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv(EnvUsername, "env_user")
	t.Setenv(EnvPassword, "env_pass")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	if err != nil {
		t.Fatalf("Failed to retrieve from environment: %v", err)
	}
	if account.Username != "env_user" || account.Password != "env_pass" {
		t.Errorf("Unexpected account: %+v", account)
	}

	if _, err := store.Retrieve("someone_else"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound for other username, got %v", err)
	}
	if !store.Exists("env_user") {
		t.Error("Expected environment account to exist")
	}

	if err := store.Store(&Account{}); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment store")
	}
	if err := store.Delete("env_user"); err != ErrStoreUnavailable {
		t.Error("Expected ErrStoreUnavailable for environment delete")
	}

	t.Setenv(EnvPassword, "")
	accounts, _ := store.List()
	if len(accounts) != 0 {
		t.Errorf("Expected no accounts without a password, got %d", len(accounts))
	}
}

func TestManagerInDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(EnvPassphrase, "test_passphrase_real_manager")
	t.Setenv(EnvUsername, "")

	manager, err := NewManagerInDir(dir, false)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	if err := manager.Store(&Account{Username: "realuser", Password: "real_pw"}); err != nil {
		t.Fatalf("Failed to store account: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "credentials.enc")); err != nil {
		t.Errorf("Expected credentials file in %s: %v", dir, err)
	}

	retrieved, err := manager.Retrieve("realuser")
	if err != nil {
		t.Fatalf("Failed to retrieve account: %v", err)
	}
	if retrieved.Password != "real_pw" {
		t.Errorf("Password mismatch: got %s", retrieved.Password)
	}

	if err := manager.Delete("realuser"); err != nil {
		t.Errorf("Failed to delete: %v", err)
	}
	if err := manager.Delete("realuser"); !errors.Is(err, ErrCredentialsNotFound) {
		t.Errorf("Expected ErrCredentialsNotFound on second delete, got %v", err)
	}
}

func TestManagerListSkipsFailingStore(t *testing.T) {
	broken := newFakeStore()
	broken.listErr = fmt.Errorf("keychain locked")
	working := newFakeStore()
	_ = working.Store(&Account{Username: "kept", Password: "pw", LastModified: time.Now()})

	manager := NewManagerWithStores(broken, working)

	accounts, err := manager.List()
	if err != nil {
		t.Fatalf("List should ignore a failing store: %v", err)
	}
	if len(accounts) != 1 || accounts[0].Username != "kept" {
		t.Errorf("Expected the working store's account, got %+v", accounts)
	}

	account, err := manager.RetrieveDefault()
	if err != nil || account.Username != "kept" {
		t.Errorf("Expected default account from the working store, got %v, %v", account, err)
	}
}

func TestShowCredentialHelp(t *testing.T) {
	var buf bytes.Buffer
	ShowCredentialHelp(&buf)

	out := buf.String()
	for _, want := range []string{EnvUsername, EnvPassword, EnvPassphrase, "followback auth login"} {
		if !strings.Contains(out, want) {
			t.Errorf("Help text missing %q", want)
		}
	}
}
