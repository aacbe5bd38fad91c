package keystore

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHashVerifyRoundTrip(t *testing.T) {
	salt := generateSalt()
	key := "my_secret_key"
	hash := hashKey(key, salt)
	if !verifyKey(key, hash, salt) {
		t.Fatal("expected verify to succeed")
	}
	if verifyKey("wrong_key", hash, salt) {
		t.Fatal("expected verify to fail for wrong key")
	}
	if verifyKey(key, hash, generateSalt()) {
		t.Fatal("expected verify to fail for wrong salt")
	}
}

func TestHashIsHex64Chars(t *testing.T) {
	hash := hashKey("key", "salt")
	if len(hash) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(hash))
	}
}

func TestGenerateHexKeyFormat(t *testing.T) {
	k := generateHexKey()
	if len(k) != 32 {
		t.Fatalf("expected 32 hex chars, got %d", len(k))
	}
	if k == generateHexKey() {
		t.Fatal("expected two generated keys to differ")
	}
}

func TestLoadOrCreateDefaults(t *testing.T) {
	dir := t.TempDir()
	ks := LoadOrCreate(dir, "admin_secret_123", testLogger())

	if !ks.IsAdmin("admin_secret_123") {
		t.Fatal("expected admin key to be recognized")
	}

	keys := ks.ListAll()
	if len(keys) != 2 {
		t.Fatalf("expected 2 default keys, got %d", len(keys))
	}

	var sawAdmin, sawSearch bool
	for _, k := range keys {
		if k.Description == AdminDescription {
			sawAdmin = true
			if k.HMACKey != nil {
				t.Fatal("admin key must not carry hmac_key")
			}
		}
		if k.Description == "Default Search API Key" {
			sawSearch = true
			if k.HMACKey == nil {
				t.Fatal("default search key must carry hmac_key")
			}
		}
	}
	if !sawAdmin || !sawSearch {
		t.Fatal("expected both default keys present")
	}

	if _, err := os.Stat(filepath.Join(dir, "keys.json")); err != nil {
		t.Fatalf("expected keys.json to be written: %v", err)
	}
}

func TestAdminKeyRotationOnMismatch(t *testing.T) {
	dir := t.TempDir()
	LoadOrCreate(dir, "original_admin_key_1", testLogger())

	ks2 := LoadOrCreate(dir, "rotated_admin_key_2", testLogger())
	if !ks2.IsAdmin("rotated_admin_key_2") {
		t.Fatal("expected rotated admin key to be recognized")
	}
	if _, ok := ks2.Lookup("original_admin_key_1"); ok {
		t.Fatal("old admin key must no longer verify")
	}
}

func TestCreateLookupUpdateDeleteRestore(t *testing.T) {
	dir := t.TempDir()
	ks := LoadOrCreate(dir, "admin_secret_123", testLogger())

	created, plaintext := ks.CreateKey(ApiKey{
		ACL:         []string{"search"},
		Description: "test key",
		Indexes:     []string{},
		Referers:    []string{},
	})
	if plaintext == "" {
		t.Fatal("expected plaintext value")
	}

	looked, ok := ks.Lookup(plaintext)
	if !ok || looked.Description != "test key" {
		t.Fatal("expected lookup to find created key")
	}

	updated := created
	updated.Description = "renamed"
	result, ok := ks.UpdateKey(plaintext, updated)
	if !ok || result.Description != "renamed" {
		t.Fatal("expected update to preserve identity and rewrite fields")
	}
	if result.Hash != created.Hash || result.Salt != created.Salt {
		t.Fatal("update must preserve hash/salt")
	}

	if !ks.DeleteKey(plaintext) {
		t.Fatal("expected delete to succeed")
	}
	if _, ok := ks.Lookup(plaintext); ok {
		t.Fatal("expected deleted key to no longer verify")
	}

	restored, ok := ks.RestoreKey(plaintext)
	if !ok || restored.Description != "renamed" {
		t.Fatal("expected restore to bring the key back")
	}
	if _, ok := ks.Lookup(plaintext); !ok {
		t.Fatal("expected restored key to verify again")
	}
}

func TestDeleteAdminKeyRefused(t *testing.T) {
	dir := t.TempDir()
	ks := LoadOrCreate(dir, "admin_secret_123", testLogger())
	if ks.DeleteKey("admin_secret_123") {
		t.Fatal("expected admin key deletion to be refused")
	}
}

func TestSecuredKeyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ks := LoadOrCreate(dir, "admin_secret_123", testLogger())
	_, parentPlain := ks.CreateKey(ApiKey{ACL: []string{"search"}, Description: "parent", Indexes: []string{}, Referers: []string{}})

	params := "filters=brand%3ANike&validUntil=" + strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10)
	encoded := GenerateSecuredAPIKey(parentPlain, params)

	parent, restrictions, ok := ks.ValidateSecuredKey(encoded)
	if !ok {
		t.Fatal("expected secured key to validate")
	}
	if parent.Description != "parent" {
		t.Fatalf("expected parent key returned, got %q", parent.Description)
	}
	if restrictions.Filters == nil || *restrictions.Filters != "brand:Nike" {
		t.Fatalf("expected decoded filters, got %+v", restrictions.Filters)
	}
}

func TestSecuredKeyExpired(t *testing.T) {
	dir := t.TempDir()
	ks := LoadOrCreate(dir, "admin_secret_123", testLogger())
	_, parentPlain := ks.CreateKey(ApiKey{ACL: []string{"search"}, Description: "parent", Indexes: []string{}, Referers: []string{}})

	params := "validUntil=1"
	encoded := GenerateSecuredAPIKey(parentPlain, params)

	if _, _, ok := ks.ValidateSecuredKey(encoded); ok {
		t.Fatal("expected expired secured key to be rejected")
	}
}

func TestSecuredKeySkipsAdminParent(t *testing.T) {
	dir := t.TempDir()
	ks := LoadOrCreate(dir, "admin_secret_123", testLogger())

	encoded := GenerateSecuredAPIKey("admin_secret_123", "filters=a")
	if _, _, ok := ks.ValidateSecuredKey(encoded); ok {
		t.Fatal("expected admin key to never parent a secured key")
	}
}

func TestLoadOrInitAdminKeyBootstraps(t *testing.T) {
	dir := t.TempDir()
	key, err := LoadOrInitAdminKey(dir)
	if err != nil {
		t.Fatalf("LoadOrInitAdminKey: %v", err)
	}
	if len(key) != 41 || key[:9] != "fj_admin_" {
		t.Fatalf("want fj_admin_<32 hex>, got %q", key)
	}
	again, err := LoadOrInitAdminKey(dir)
	if err != nil {
		t.Fatalf("second LoadOrInitAdminKey: %v", err)
	}
	if again != key {
		t.Fatalf("second boot must reuse the persisted key: %q != %q", again, key)
	}
	info, err := os.Stat(filepath.Join(dir, ".admin_key"))
	if err != nil {
		t.Fatalf("stat .admin_key: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("want .admin_key mode 0600, got %v", info.Mode().Perm())
	}
}
