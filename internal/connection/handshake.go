package connection

import (
	"context"

	"go.uber.org/zap"

	"github.com/paynet/ebics-gateway/internal/ebics/envelope"
	"github.com/paynet/ebics-gateway/internal/ebics/hev"
	"github.com/paynet/ebics-gateway/internal/ebics/keyexchange"
	"github.com/paynet/ebics-gateway/internal/ebics/transport"
	"github.com/paynet/ebics-gateway/internal/ebicscrypto"
	"github.com/paynet/ebics-gateway/pkg/clock"
	"github.com/paynet/ebics-gateway/pkg/errors"
	"github.com/paynet/ebics-gateway/pkg/log"
)

// bankKeyCache is the subset of redislock.Client's caching surface
// HandshakeService needs: a short-TTL holding area for a bank's public
// keys, consulted before FetchHPB re-runs the full HPB exchange. Kept as a
// local interface so this package doesn't depend on go-redis for the
// common case of no distributed cache at all.
type bankKeyCache interface {
	CacheBankKeys(ctx context.Context, connectionID string, authModulus, authExponent, encModulus, encExponent []byte) error
	CachedBankKeys(ctx context.Context, connectionID string) (authModulus, authExponent, encModulus, encExponent []byte, found bool, err error)
}

// HandshakeService drives the INI/HIA/HPB state machine against a
// repository-backed Connection.
type HandshakeService struct {
	repo     Repository
	clock    clock.Clock
	keyCache bankKeyCache
}

// NewHandshakeService builds a HandshakeService.
func NewHandshakeService(repo Repository, clk clock.Clock) *HandshakeService {
	return &HandshakeService{repo: repo, clock: clk}
}

// WithBankKeyCache adds a distributed cache of bank public keys, consulted
// by FetchHPB so a second gateway instance (or this one, after a restart)
// doesn't have to re-run the HPB exchange just to rediscover keys another
// instance already fetched moments ago.
func (s *HandshakeService) WithBankKeyCache(c bankKeyCache) *HandshakeService {
	s.keyCache = c
	return s
}

// Probe queries a bank host's supported EBICS protocol versions via HEV.
// Unlike SendINI/SendHIA/FetchHPB this needs no key material and changes
// no connection state, so it can run before a connection even exists —
// operators use it to confirm a host is reachable before provisioning one.
func (s *HandshakeService) Probe(ctx context.Context, url, hostID string) ([]hev.SupportedVersion, error) {
	return hev.Probe(ctx, transport.New(url), hostID)
}

// Create provisions a fresh connection with a new RSA key triple and
// unknown handshake state.
func (s *HandshakeService) Create(ctx context.Context, id, url, hostID, partnerID, userID, systemID string) (*Connection, error) {
	keys, err := generateKeyTriple()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	c := &Connection{
		ID:        id,
		URL:       url,
		HostID:    hostID,
		PartnerID: partnerID,
		UserID:    userID,
		SystemID:  systemID,
		Keys:      keys,
		INIState:  KeyStateNotSent,
		HIAState:  KeyStateNotSent,
		Status:    StatusNotReady,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SendINI uploads the subscriber's signature public key.
func (s *HandshakeService) SendINI(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	client := transport.New(c.URL)
	sub := keyexchange.Subscriber{HostID: c.HostID, PartnerID: c.PartnerID, UserID: c.UserID}

	if err := keyexchange.INI(ctx, client, sub, &c.Keys.Signature.PublicKey); err != nil {
		return err
	}

	c.MarkINISent(s.clock.Now())
	return s.repo.Save(ctx, c)
}

// SendHIA uploads the subscriber's authentication and encryption public
// keys.
func (s *HandshakeService) SendHIA(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	client := transport.New(c.URL)
	sub := keyexchange.Subscriber{HostID: c.HostID, PartnerID: c.PartnerID, UserID: c.UserID}

	if err := keyexchange.HIA(ctx, client, sub, &c.Keys.Authentication.PublicKey, &c.Keys.Encryption.PublicKey); err != nil {
		return err
	}

	c.MarkHIASent(s.clock.Now())
	return s.repo.Save(ctx, c)
}

// FetchHPB downloads the bank's public keys, or reuses them from the
// distributed cache if another instance fetched them recently. Requires
// INI and HIA to have already been accepted.
func (s *HandshakeService) FetchHPB(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if c.INIState != KeyStateSent || c.HIAState != KeyStateSent {
		return errors.State("connection %s: HPB requires INI and HIA to be sent first", id)
	}

	now := s.clock.Now()

	if bankKeys, ok := s.cachedBankKeys(ctx, id); ok {
		c.MarkReady(bankKeys, now)
		return s.repo.Save(ctx, c)
	}

	client := transport.New(c.URL)
	sub := keyexchange.Subscriber{HostID: c.HostID, PartnerID: c.PartnerID, UserID: c.UserID}

	bankKeys, err := keyexchange.HPB(ctx, client, sub, c.Keys.Authentication, c.Keys.Encryption, now)
	if err != nil {
		var protoErr *errors.Error
		if errors.As(err, &protoErr) && !protoErr.Retryable() {
			c.MarkError(protoErr.Error(), now)
			_ = s.repo.Save(ctx, c)
		}
		return err
	}

	c.MarkReady(BankKeys{Authentication: bankKeys.Authentication, Encryption: bankKeys.Encryption}, now)
	s.storeBankKeyCache(ctx, id, c.BankKeys)
	return s.repo.Save(ctx, c)
}

func (s *HandshakeService) cachedBankKeys(ctx context.Context, id string) (BankKeys, bool) {
	if s.keyCache == nil {
		return BankKeys{}, false
	}
	authMod, authExp, encMod, encExp, found, err := s.keyCache.CachedBankKeys(ctx, id)
	if err != nil || !found {
		return BankKeys{}, false
	}
	return BankKeys{
		Authentication: envelope.RebuildPublicKey(authMod, authExp),
		Encryption:     envelope.RebuildPublicKey(encMod, encExp),
	}, true
}

func (s *HandshakeService) storeBankKeyCache(ctx context.Context, id string, keys BankKeys) {
	if s.keyCache == nil {
		return
	}
	authMod, authExp := envelope.ModulusExponent(keys.Authentication)
	encMod, encExp := envelope.ModulusExponent(keys.Encryption)
	if err := s.keyCache.CacheBankKeys(ctx, id, authMod, authExp, encMod, encExp); err != nil {
		log.FromContext(ctx).Warn("connection: failed to cache bank keys", zap.String("connection_id", id), zap.Error(err))
	}
}

// Rotate generates a fresh key triple and resets handshake state, logging
// the rotation (keys are never logged themselves).
func (s *HandshakeService) Rotate(ctx context.Context, id string) error {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	keys, err := generateKeyTriple()
	if err != nil {
		return err
	}

	c.RotateKeys(keys, s.clock.Now())
	if err := s.repo.Save(ctx, c); err != nil {
		return err
	}

	log.FromContext(ctx).Info("connection keys rotated", zap.String("connection_id", id))
	return nil
}

func generateKeyTriple() (KeyTriple, error) {
	sig, err := ebicscrypto.GenerateRSA()
	if err != nil {
		return KeyTriple{}, err
	}
	auth, err := ebicscrypto.GenerateRSA()
	if err != nil {
		return KeyTriple{}, err
	}
	enc, err := ebicscrypto.GenerateRSA()
	if err != nil {
		return KeyTriple{}, err
	}
	return KeyTriple{Signature: sig, Authentication: auth, Encryption: enc}, nil
}
