package liff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	// ErrKeyNotFound is returned when the token's kid is absent from the LINE key set.
	ErrKeyNotFound = errors.New("liff: signing key not found")
	// ErrKeySetFetch wraps transport or decoding errors while loading the key set.
	ErrKeySetFetch = errors.New("liff: key set fetch failed")
)

const defaultKeySetTTL = 30 * time.Minute

// KeySet caches the public keys LINE signs ID tokens with.
type KeySet struct {
	url    string
	client HTTPClient
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time

	refreshMu sync.Mutex
}

// NewKeySet builds a key set loaded lazily from url.
func NewKeySet(url string, client HTTPClient, logger *zap.Logger) *KeySet {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeySet{url: url, client: client, logger: logger, now: time.Now}
}

// Keyfunc resolves ES256 verification keys for jwt parsing.
func (k *KeySet) Keyfunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodES256.Alg() {
			return nil, fmt.Errorf("liff: unexpected signing method %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("liff: token missing kid header")
		}
		return k.Key(ctx, kid)
	}
}

// Key returns the public key for kid, refetching the set once when it is stale or does not
// contain kid.
func (k *KeySet) Key(ctx context.Context, kid string) (any, error) {
	if !k.stale() {
		if key, ok := k.cached(kid); ok {
			return key, nil
		}
	}
	if err := k.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := k.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
}

func (k *KeySet) cached(kid string) (any, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	jwk, ok := k.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (k *KeySet) stale() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) == 0 || !k.now().Before(k.expiry)
}

func (k *KeySet) refresh(ctx context.Context) error {
	k.refreshMu.Lock()
	defer k.refreshMu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetFetch, err)
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeySetFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrKeySetFetch, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrKeySetFetch, err)
	}

	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" || !jwk.Valid() || !jwk.IsPublic() {
			continue
		}
		keys[jwk.KeyID] = jwk
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrKeySetFetch)
	}

	ttl := maxAge(resp.Header.Get("Cache-Control"))
	if ttl <= 0 {
		ttl = defaultKeySetTTL
	}

	k.mu.Lock()
	k.keys = keys
	k.expiry = k.now().Add(ttl)
	k.mu.Unlock()

	k.logger.Debug("refreshed line key set", zap.Int("keys", len(keys)), zap.Duration("ttl", ttl))
	return nil
}

func maxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}
