package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"web3-orchestrator/internal/core/ports"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Dialer opens a backend for an RPC endpoint.
type Dialer func(ctx context.Context, rpcURL string) (Backend, error)

// DialEthclient dials a JSON-RPC endpoint with go-ethereum's client.
func DialEthclient(ctx context.Context, rpcURL string) (Backend, error) {
	trimmed := strings.TrimSpace(rpcURL)
	if trimmed == "" {
		return nil, fmt.Errorf("rpc endpoint required")
	}
	return ethclient.DialContext(ctx, trimmed)
}

// KeyFromHex parses a hex-encoded secp256k1 private key, with or without 0x.
func KeyFromHex(s string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// KeySession is a wallet session backed by a local private key. It can
// switch to any chain it has an endpoint for.
type KeySession struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	connected bool
	chainID   int64
	endpoints map[int64]string
	backends  map[int64]Backend
	dial      Dialer
	subs      map[int]chan ports.SessionEvent
	nextSub   int
}

// NewKeySession creates a disconnected session on chainID.
func NewKeySession(key *ecdsa.PrivateKey, chainID int64, endpoints map[int64]string, dial Dialer) *KeySession {
	if dial == nil {
		dial = DialEthclient
	}
	eps := make(map[int64]string, len(endpoints))
	for id, url := range endpoints {
		eps[id] = url
	}
	return &KeySession{
		key:       key,
		chainID:   chainID,
		endpoints: eps,
		backends:  make(map[int64]Backend),
		dial:      dial,
		subs:      make(map[int]chan ports.SessionEvent),
	}
}

// Connect marks the session connected. A session without a key cannot connect.
func (s *KeySession) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		return fmt.Errorf("no private key configured")
	}
	s.connected = true
	s.notifyLocked()
	return nil
}

// Disconnect marks the session disconnected.
func (s *KeySession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.notifyLocked()
}

func (s *KeySession) Account() (common.Address, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.key == nil {
		return common.Address{}, false
	}
	return crypto.PubkeyToAddress(s.key.PublicKey), true
}

func (s *KeySession) ChainID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainID
}

// SwitchChain moves the session to chainID. It fails with
// ports.ErrSwitchUnsupported when no endpoint is configured for it.
func (s *KeySession) SwitchChain(ctx context.Context, chainID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chainID == s.chainID {
		return nil
	}
	if _, ok := s.endpoints[chainID]; !ok {
		return ports.ErrSwitchUnsupported
	}
	if _, err := s.backendLocked(ctx, chainID); err != nil {
		return err
	}
	s.chainID = chainID
	s.notifyLocked()
	return nil
}

// Backend returns the backend of the current chain, dialing it on first use.
func (s *KeySession) Backend() (Backend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backendLocked(context.Background(), s.chainID)
}

func (s *KeySession) backendLocked(ctx context.Context, chainID int64) (Backend, error) {
	if b, ok := s.backends[chainID]; ok {
		return b, nil
	}
	url, ok := s.endpoints[chainID]
	if !ok {
		return nil, fmt.Errorf("no rpc endpoint for chain %d", chainID)
	}
	b, err := s.dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial chain %d: %w", chainID, err)
	}
	s.backends[chainID] = b
	return b, nil
}

// SignTx signs tx for the current chain.
func (s *KeySession) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected || s.key == nil {
		return nil, fmt.Errorf("wallet disconnected")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(s.chainID)), s.key)
}

// Subscribe returns session change notifications. Slow subscribers miss
// events rather than block the session.
func (s *KeySession) Subscribe() (<-chan ports.SessionEvent, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan ports.SessionEvent, 4)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (s *KeySession) notifyLocked() {
	ev := ports.SessionEvent{Connected: s.connected, ChainID: s.chainID}
	if s.connected && s.key != nil {
		ev.Account = crypto.PubkeyToAddress(s.key.PublicKey)
	}
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
