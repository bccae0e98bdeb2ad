// Package auth implements the flat-file credential store that backs the
// login handshake. Accounts live in a single text file, one
// "username:salt:hash" line per account, where hash is the hex SHA-256 of
// the password concatenated with the salt.
//
// Unknown usernames are registered on first contact: presenting a username
// the store has never seen creates the account with the offered password.
package auth

import (
	"bufio"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Outcome is the result of an authentication attempt.
type Outcome int

const (
	// OutcomeLogin means the username existed and the password matched.
	OutcomeLogin Outcome = iota
	// OutcomeCreated means the username was unknown and a new account
	// was registered with the offered password.
	OutcomeCreated
	// OutcomeBadPassword means the username existed but the password
	// did not match.
	OutcomeBadPassword
)

func (o Outcome) String() string {
	switch o {
	case OutcomeLogin:
		return "login"
	case OutcomeCreated:
		return "created"
	case OutcomeBadPassword:
		return "denied"
	default:
		return "unknown"
	}
}

const saltLength = 16

// saltAlphabet matches the character set accepted in stored salt fields.
const saltAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// CredentialStore manages accounts in an append-only users file. The mutex
// covers the whole scan-then-append cycle, so two concurrent first logins
// with the same username cannot both register it.
type CredentialStore struct {
	mu   sync.Mutex
	path string
}

// NewCredentialStore returns a store backed by the given users file.
// A missing file is treated as an empty store.
func NewCredentialStore(path string) *CredentialStore {
	return &CredentialStore{path: path}
}

// Path returns the location of the users file.
func (s *CredentialStore) Path() string {
	return s.path
}

// Authenticate checks the username and password against the store.
// An unknown username registers a new account. The returned error is
// non-nil only for storage failures, never for a wrong password.
func (s *CredentialStore) Authenticate(username, password string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(username)
	if err != nil {
		return OutcomeBadPassword, err
	}

	if rec != nil {
		if hashPassword(password, rec.salt) == rec.hash {
			return OutcomeLogin, nil
		}
		return OutcomeBadPassword, nil
	}

	salt, err := generateSalt()
	if err != nil {
		return OutcomeBadPassword, err
	}
	if err := s.appendRecord(username, salt, hashPassword(password, salt)); err != nil {
		return OutcomeBadPassword, err
	}
	return OutcomeCreated, nil
}

// Usernames returns every registered username in file order.
func (s *CredentialStore) Usernames() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open users file %q: %w", s.path, err)
	}
	defer f.Close()

	var names []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), ":", 3)
		if len(fields) != 3 || fields[0] == "" {
			continue
		}
		names = append(names, fields[0])
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading users file %q: %w", s.path, err)
	}
	return names, nil
}

type record struct {
	salt string
	hash string
}

// lookup scans the users file for username. A nil record with a nil error
// means the username is not registered. Malformed lines are skipped.
func (s *CredentialStore) lookup(username string) (*record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open users file %q: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.SplitN(scanner.Text(), ":", 3)
		if len(fields) != 3 {
			continue
		}
		if fields[0] == username {
			return &record{salt: fields[1], hash: fields[2]}, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed reading users file %q: %w", s.path, err)
	}
	return nil, nil
}

func (s *CredentialStore) appendRecord(username, salt, hash string) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory %q: %w", dir, err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open users file %q: %w", s.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s:%s:%s\n", username, salt, hash); err != nil {
		return fmt.Errorf("failed writing users file %q: %w", s.path, err)
	}
	return nil
}

// hashPassword returns the hex SHA-256 digest of password concatenated
// with salt, the field format stored in the users file.
func hashPassword(password, salt string) string {
	sum := sha256.Sum256([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

// generateSalt draws saltLength alphanumeric characters from crypto/rand.
func generateSalt() (string, error) {
	buf := make([]byte, saltLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	out := make([]byte, saltLength)
	for i, b := range buf {
		out[i] = saltAlphabet[int(b)%len(saltAlphabet)]
	}
	return string(out), nil
}
