// Package keys manages the local service's signing-key lifecycle: lazy
// bootstrap of the first pair, rotation with a retirement window for the
// displaced key, and an in-process cache of the active pair.
package keys

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tokman/internal/keystore"
	"github.com/dropDatabas3/tokman/internal/metrics"
	"github.com/dropDatabas3/tokman/internal/observability/logger"
)

const rsaKeyBits = 2048

// activeCacheTTL bounds how long a process signs with a cached pair before
// re-reading the pointer, so a rotation done by another process is picked up.
const activeCacheTTL = 30 * time.Second

// KeyPair is a freshly generated signing pair.
type KeyPair struct {
	KID       string
	Private   *rsa.PrivateKey
	Public    *rsa.PublicKey
	CreatedAt time.Time
}

// Lifecycle owns key generation and rotation for one service identity.
// Safe for concurrent use.
type Lifecycle struct {
	store     keystore.Store
	keys      keystore.Keys
	oldKeyTTL time.Duration
	log       *zap.Logger

	mu         sync.RWMutex
	activeKID  string
	activePriv *rsa.PrivateKey
	cacheUntil time.Time
}

func NewLifecycle(store keystore.Store, service string, oldKeyTTL time.Duration) *Lifecycle {
	return &Lifecycle{
		store:     store,
		keys:      keystore.Keys{Service: service},
		oldKeyTTL: oldKeyTTL,
		log:       logger.Named("keys").With(logger.Service(service)),
	}
}

// ActiveKeyID returns the current pointer, generating the first pair when the
// service has none yet. The bootstrap race between concurrent first callers is
// benign: both generate, one pointer wins, the loser's pair is orphaned.
func (l *Lifecycle) ActiveKeyID(ctx context.Context) (string, error) {
	kid, _, err := l.Active(ctx)
	return kid, err
}

// ActivePrivateKey returns the signing key for the current pointer.
func (l *Lifecycle) ActivePrivateKey(ctx context.Context) (*rsa.PrivateKey, error) {
	_, priv, err := l.Active(ctx)
	return priv, err
}

// Active returns the cached active pair, reading through to the store when the
// cache window lapsed. Store unavailability propagates; it is never treated as
// "no key".
func (l *Lifecycle) Active(ctx context.Context) (string, *rsa.PrivateKey, error) {
	l.mu.RLock()
	if time.Now().Before(l.cacheUntil) && l.activeKID != "" && l.activePriv != nil {
		kid, priv := l.activeKID, l.activePriv
		l.mu.RUnlock()
		return kid, priv, nil
	}
	l.mu.RUnlock()

	kidB, err := l.store.Get(ctx, l.keys.CurrentKeyID())
	if errors.Is(err, keystore.ErrNotFound) {
		pair, genErr := l.Generate(ctx, false)
		if genErr != nil {
			return "", nil, genErr
		}
		return pair.KID, pair.Private, nil
	}
	if err != nil {
		return "", nil, err
	}
	kid := string(kidB)

	privB, err := l.store.Get(ctx, l.keys.PrivateKey(kid))
	if errors.Is(err, keystore.ErrNotFound) {
		// Pointer without a record only happens on store data loss.
		l.log.Warn("active private key missing, regenerating", logger.KID(kid))
		pair, genErr := l.Generate(ctx, false)
		if genErr != nil {
			return "", nil, genErr
		}
		return pair.KID, pair.Private, nil
	}
	if err != nil {
		return "", nil, err
	}
	priv, err := ParsePrivatePEM(privB)
	if err != nil {
		return "", nil, err
	}

	l.cache(kid, priv)
	return kid, priv, nil
}

// Generate creates a new pair, persists it and flips the pointer in one
// atomic batch. With expireCurrent the displaced pair's records are re-set to
// expire after oldKeyTTL, in the same batch, so the pointer flip and the
// retirement are never observed separately.
func (l *Lifecycle) Generate(ctx context.Context, expireCurrent bool) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, err
	}
	kid := uuid.NewString()
	pubPEM, err := EncodePublicPEM(&priv.PublicKey)
	if err != nil {
		return nil, err
	}

	ops := []keystore.Op{
		{Key: l.keys.PrivateKey(kid), Value: EncodePrivatePEM(priv)},
		{Key: l.keys.PublicKey(kid), Value: pubPEM},
		{Key: l.keys.CurrentKeyID(), Value: []byte(kid)},
	}

	prevKID, err := l.previousKID(ctx)
	if err != nil {
		return nil, err
	}
	if expireCurrent && prevKID != "" && prevKID != kid {
		retire, err := l.retireOps(ctx, prevKID)
		if err != nil {
			return nil, err
		}
		ops = append(ops, retire...)
	}

	if err := l.store.SetMany(ctx, ops); err != nil {
		return nil, err
	}

	l.cache(kid, priv)
	metrics.KeyRotations.Inc()
	l.log.Info("signing key generated",
		logger.KID(kid),
		zap.Bool("expire_current", expireCurrent),
		zap.String("previous_kid", prevKID),
	)

	return &KeyPair{
		KID:       kid,
		Private:   priv,
		Public:    &priv.PublicKey,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (l *Lifecycle) previousKID(ctx context.Context) (string, error) {
	b, err := l.store.Get(ctx, l.keys.CurrentKeyID())
	if errors.Is(err, keystore.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// retireOps re-writes the displaced pair with the retirement TTL so tokens
// signed before the rotation stay verifiable until the TTL elapses.
func (l *Lifecycle) retireOps(ctx context.Context, kid string) ([]keystore.Op, error) {
	var ops []keystore.Op
	for _, key := range []string{l.keys.PrivateKey(kid), l.keys.PublicKey(kid)} {
		v, err := l.store.Get(ctx, key)
		if errors.Is(err, keystore.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ops = append(ops, keystore.Op{Key: key, Value: v, TTL: l.oldKeyTTL})
	}
	return ops, nil
}

func (l *Lifecycle) cache(kid string, priv *rsa.PrivateKey) {
	l.mu.Lock()
	l.activeKID = kid
	l.activePriv = priv
	l.cacheUntil = time.Now().Add(activeCacheTTL)
	l.mu.Unlock()
}
