package keystore

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SecuredKeyRestrictions are the HMAC-bound query constraints encoded into a
// secured API key.
type SecuredKeyRestrictions struct {
	Filters         *string
	ValidUntil      *int64
	RestrictIndices []string
	UserToken       *string
	HitsPerPage     *int
	RestrictSources *string
}

func restrictionsFromParams(params string) SecuredKeyRestrictions {
	var r SecuredKeyRestrictions
	values, err := url.ParseQuery(params)
	if err != nil {
		return r
	}
	for key, vals := range values {
		if len(vals) == 0 {
			continue
		}
		value := vals[0]
		switch key {
		case "filters":
			v := value
			r.Filters = &v
		case "validUntil":
			if n, err := strconv.ParseInt(value, 10, 64); err == nil {
				r.ValidUntil = &n
			}
		case "restrictIndices":
			var list []string
			if err := json.Unmarshal([]byte(value), &list); err == nil {
				r.RestrictIndices = list
			} else {
				parts := strings.Split(value, ",")
				for i := range parts {
					parts[i] = strings.TrimSpace(parts[i])
				}
				r.RestrictIndices = parts
			}
		case "userToken":
			v := value
			r.UserToken = &v
		case "hitsPerPage":
			if n, err := strconv.Atoi(value); err == nil {
				r.HitsPerPage = &n
			}
		case "restrictSources":
			v := value
			r.RestrictSources = &v
		}
	}
	return r
}

// GenerateSecuredAPIKey derives a short-lived key from parentKey by
// HMAC-SHA256'ing the URL-encoded params and base64-encoding
// hex(hmac) || params.
func GenerateSecuredAPIKey(parentKey, params string) string {
	mac := hmac.New(sha256.New, []byte(parentKey))
	mac.Write([]byte(params))
	hmacHex := hex.EncodeToString(mac.Sum(nil))
	combined := hmacHex + params
	return base64.StdEncoding.EncodeToString([]byte(combined))
}

// ValidateSecuredKey decodes encoded, linearly tries every stored hmacKey
// looking for one whose HMAC matches, and on success returns the parent key
// and the decoded restrictions. Admin keys (no hmacKey) are skipped. Returns
// ok=false if decoding fails, no parent matches, or validUntil has passed.
func (ks *KeyStore) ValidateSecuredKey(encoded string) (ApiKey, SecuredKeyRestrictions, bool) {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ApiKey{}, SecuredKeyRestrictions{}, false
	}
	decodedStr := string(decoded)
	if len(decodedStr) < 64 {
		return ApiKey{}, SecuredKeyRestrictions{}, false
	}
	hmacHex := decodedStr[:64]
	params := decodedStr[64:]

	hmacBytes, err := hex.DecodeString(hmacHex)
	if err != nil {
		return ApiKey{}, SecuredKeyRestrictions{}, false
	}

	ks.mu.RLock()
	keys := make([]ApiKey, len(ks.data.Keys))
	copy(keys, ks.data.Keys)
	ks.mu.RUnlock()

	for _, key := range keys {
		if key.HMACKey == nil {
			continue
		}
		mac := hmac.New(sha256.New, []byte(*key.HMACKey))
		mac.Write([]byte(params))
		if hmac.Equal(mac.Sum(nil), hmacBytes) {
			restrictions := restrictionsFromParams(params)
			if restrictions.ValidUntil != nil && time.Now().Unix() > *restrictions.ValidUntil {
				return ApiKey{}, SecuredKeyRestrictions{}, false
			}
			return key, restrictions, true
		}
	}
	return ApiKey{}, SecuredKeyRestrictions{}, false
}
