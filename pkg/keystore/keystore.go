// Package keystore persists, hash-verifies, and rotates Algolia-compatible
// API keys, and derives/validates HMAC-secured keys from them.
package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// AdminDescription is the fixed description of the one admin key entry.
const AdminDescription = "Admin API Key"

// DefaultACLs is the full capability list granted to the bootstrap admin key.
var DefaultACLs = []string{
	"search", "browse", "addObject", "deleteObject", "deleteIndex",
	"settings", "editSettings", "listIndexes", "logs",
	"seeUnretrievableAttributes", "analytics", "recommendation", "usage",
	"inference", "personalization",
}

// ApiKey is the identity for an authenticated actor.
type ApiKey struct {
	Hash                  string   `json:"hash"`
	Salt                  string   `json:"salt"`
	HMACKey               *string  `json:"hmac_key,omitempty"`
	CreatedAt             int64    `json:"createdAt"`
	ACL                   []string `json:"acl"`
	Description           string   `json:"description"`
	Indexes               []string `json:"indexes"`
	MaxHitsPerQuery       int64    `json:"maxHitsPerQuery"`
	MaxQueriesPerIPPerHour int64   `json:"maxQueriesPerIPPerHour"`
	QueryParameters       string   `json:"queryParameters"`
	Referers              []string `json:"referers"`
	Validity              int64    `json:"validity"`
}

// HasACL reports whether the key's ACL list contains the given capability.
func (k ApiKey) HasACL(acl string) bool {
	for _, a := range k.ACL {
		if a == acl {
			return true
		}
	}
	return false
}

type keyStoreData struct {
	Keys        []ApiKey `json:"keys"`
	DeletedKeys []ApiKey `json:"deleted_keys"`
}

// KeyStore is the process-wide, shared, reader-preferring API key store.
type KeyStore struct {
	mu            sync.RWMutex
	data          keyStoreData
	filePath      string
	adminKeyValue string
	logger        *slog.Logger
}

// LoadOrCreate loads keys.json from dataDir, creating defaults on parse
// failure or absence. If the stored admin entry no longer verifies against
// adminKey, it is rotated in place.
func LoadOrCreate(dataDir, adminKey string, logger *slog.Logger) *KeyStore {
	filePath := filepath.Join(dataDir, "keys.json")
	data := loadData(filePath, adminKey, logger)

	for i := range data.Keys {
		if data.Keys[i].Description != AdminDescription {
			continue
		}
		if !verifyKey(adminKey, data.Keys[i].Hash, data.Keys[i].Salt) {
			salt := generateSalt()
			data.Keys[i].Hash = hashKey(adminKey, salt)
			data.Keys[i].Salt = salt
			logger.Info("admin key rotated")
		}
	}

	ks := &KeyStore{
		data:          data,
		filePath:      filePath,
		adminKeyValue: adminKey,
		logger:        logger,
	}
	ks.save()
	return ks
}

func loadData(filePath, adminKey string, logger *slog.Logger) keyStoreData {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return defaultKeys(adminKey)
	}
	var data keyStoreData
	if err := json.Unmarshal(contents, &data); err != nil {
		logger.Warn("failed to parse keys.json, recreating", "error", err)
		return defaultKeys(adminKey)
	}
	return data
}

func defaultKeys(adminKey string) keyStoreData {
	now := time.Now().UnixMilli()

	adminSalt := generateSalt()
	admin := ApiKey{
		Hash:        hashKey(adminKey, adminSalt),
		Salt:        adminSalt,
		HMACKey:     nil,
		CreatedAt:   now,
		ACL:         append([]string(nil), DefaultACLs...),
		Description: AdminDescription,
		Indexes:     []string{},
		Referers:    []string{},
	}

	searchKeyValue := "fj_search_" + generateHexKey()
	searchSalt := generateSalt()
	search := ApiKey{
		Hash:        hashKey(searchKeyValue, searchSalt),
		Salt:        searchSalt,
		HMACKey:     &searchKeyValue,
		CreatedAt:   now,
		ACL:         []string{"search"},
		Description: "Default Search API Key",
		Indexes:     []string{},
		Referers:    []string{},
	}

	return keyStoreData{Keys: []ApiKey{admin, search}, DeletedKeys: []ApiKey{}}
}

func (ks *KeyStore) save() {
	ks.mu.RLock()
	out, err := json.MarshalIndent(ks.data, "", "  ")
	ks.mu.RUnlock()
	if err != nil {
		ks.logger.Warn("failed to marshal keys.json", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(ks.filePath), 0o755); err != nil {
		ks.logger.Warn("failed to create data dir", "error", err)
		return
	}
	if err := os.WriteFile(ks.filePath, out, 0o644); err != nil {
		ks.logger.Warn("failed to save keys.json", "error", err)
	}
}

// IsAdmin reports whether keyValue is the live admin key.
func (ks *KeyStore) IsAdmin(keyValue string) bool {
	return keyValue == ks.adminKeyValue
}

// AdminKeyValue returns the live plaintext admin key.
func (ks *KeyStore) AdminKeyValue() string {
	return ks.adminKeyValue
}

// Lookup scans stored keys for one whose hash verifies against keyValue.
func (ks *KeyStore) Lookup(keyValue string) (ApiKey, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	for _, k := range ks.data.Keys {
		if verifyKey(keyValue, k.Hash, k.Salt) {
			return k, true
		}
	}
	return ApiKey{}, false
}

// ListAll returns every live key.
func (ks *KeyStore) ListAll() []ApiKey {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make([]ApiKey, len(ks.data.Keys))
	copy(out, ks.data.Keys)
	return out
}

// CreateKey mints a new key, hashes it, and returns both the stored record
// and the plaintext value, the only time the plaintext is exposed.
func (ks *KeyStore) CreateKey(key ApiKey) (ApiKey, string) {
	plaintext := "fj_search_" + generateHexKey()
	salt := generateSalt()

	key.Hash = hashKey(plaintext, salt)
	key.Salt = salt
	key.CreatedAt = time.Now().UnixMilli()
	key.HMACKey = &plaintext

	ks.mu.Lock()
	ks.data.Keys = append(ks.data.Keys, key)
	ks.mu.Unlock()
	ks.save()

	return key, plaintext
}

// UpdateKey rewrites every field of the key matching keyValue except hash,
// salt, and createdAt, which are preserved from the existing entry.
func (ks *KeyStore) UpdateKey(keyValue string, updated ApiKey) (ApiKey, bool) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for i := range ks.data.Keys {
		if !verifyKey(keyValue, ks.data.Keys[i].Hash, ks.data.Keys[i].Salt) {
			continue
		}
		updated.Hash = ks.data.Keys[i].Hash
		updated.Salt = ks.data.Keys[i].Salt
		updated.CreatedAt = ks.data.Keys[i].CreatedAt
		ks.data.Keys[i] = updated
		ks.mu.Unlock()
		ks.save()
		ks.mu.Lock()
		return updated, true
	}
	return ApiKey{}, false
}

// DeleteKey soft-deletes a key into deletedKeys. Refuses to delete the admin
// entry.
func (ks *KeyStore) DeleteKey(keyValue string) bool {
	ks.mu.Lock()
	for _, k := range ks.data.Keys {
		if k.Description == AdminDescription && verifyKey(keyValue, k.Hash, k.Salt) {
			ks.mu.Unlock()
			return false
		}
	}
	for i, k := range ks.data.Keys {
		if !verifyKey(keyValue, k.Hash, k.Salt) {
			continue
		}
		ks.data.Keys = append(ks.data.Keys[:i], ks.data.Keys[i+1:]...)
		ks.data.DeletedKeys = append(ks.data.DeletedKeys, k)
		ks.mu.Unlock()
		ks.save()
		return true
	}
	ks.mu.Unlock()
	return false
}

// RestoreKey moves a soft-deleted key back into the live set.
func (ks *KeyStore) RestoreKey(keyValue string) (ApiKey, bool) {
	ks.mu.Lock()
	for i, k := range ks.data.DeletedKeys {
		if !verifyKey(keyValue, k.Hash, k.Salt) {
			continue
		}
		ks.data.DeletedKeys = append(ks.data.DeletedKeys[:i], ks.data.DeletedKeys[i+1:]...)
		ks.data.Keys = append(ks.data.Keys, k)
		ks.mu.Unlock()
		ks.save()
		return k, true
	}
	ks.mu.Unlock()
	return ApiKey{}, false
}

// LoadOrInitAdminKey returns the admin key plaintext from
// {dataDir}/.admin_key, generating a fresh fj_admin_<32 hex> key (and
// writing the file with mode 0600) on first boot.
func LoadOrInitAdminKey(dataDir string) (string, error) {
	adminKeyFile := filepath.Join(dataDir, ".admin_key")
	if contents, err := os.ReadFile(adminKeyFile); err == nil {
		if key := string(contents); key != "" {
			return key, nil
		}
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating data dir: %w", err)
	}
	newKey := "fj_admin_" + generateHexKey()
	if err := os.WriteFile(adminKeyFile, []byte(newKey), 0o600); err != nil {
		return "", fmt.Errorf("writing .admin_key: %w", err)
	}
	return newKey, nil
}

// ResetAdminKey regenerates the admin key in place, rewrites keys.json, and
// writes the new plaintext to {dataDir}/.admin_key (mode 0600). Used by the
// reset-admin-key CLI subcommand.
func ResetAdminKey(dataDir string) (string, error) {
	filePath := filepath.Join(dataDir, "keys.json")
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("no keys.json found, start the server first to initialize: %w", err)
	}
	var data keyStoreData
	if err := json.Unmarshal(contents, &data); err != nil {
		return "", fmt.Errorf("parsing keys.json: %w", err)
	}

	newKey := "fj_admin_" + generateHexKey()
	salt := generateSalt()
	hash := hashKey(newKey, salt)

	found := false
	for i := range data.Keys {
		if data.Keys[i].Description == AdminDescription {
			data.Keys[i].Hash = hash
			data.Keys[i].Salt = salt
			found = true
			break
		}
	}
	if !found {
		return "", fmt.Errorf("no admin key found in keys.json")
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serializing keys.json: %w", err)
	}
	if err := os.WriteFile(filePath, out, 0o644); err != nil {
		return "", fmt.Errorf("writing keys.json: %w", err)
	}

	adminKeyFile := filepath.Join(dataDir, ".admin_key")
	if err := os.WriteFile(adminKeyFile, []byte(newKey), 0o600); err != nil {
		return "", fmt.Errorf("writing .admin_key: %w", err)
	}

	return newKey, nil
}

func generateHexKey() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func generateSalt() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func hashKey(keyValue, salt string) string {
	h := sha256.New()
	h.Write([]byte(salt))
	h.Write([]byte(keyValue))
	return hex.EncodeToString(h.Sum(nil))
}

func verifyKey(keyValue, storedHash, salt string) bool {
	computed := hashKey(keyValue, salt)
	if len(computed) != len(storedHash) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
