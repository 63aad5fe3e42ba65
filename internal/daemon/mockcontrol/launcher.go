package mockcontrol

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/blake2b"

	"walletd/go-backend/internal/daemon/ports"
	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/internal/securestore"
)

const (
	seedEntropyBits = 256
	seedFileName    = "wallet.seed"
)

// Launcher starts in-memory wallet sessions for the mock backend.
type Launcher struct {
	now          func() time.Time
	initialCoins []uint64

	mu   sync.Mutex
	last *Session
}

var _ ports.Launcher = (*Launcher)(nil)

type Option func(*Launcher)

// WithInitialCoins funds every new session with one confirmed coin per amount.
func WithInitialCoins(amountsSat ...uint64) Option {
	return func(l *Launcher) {
		l.initialCoins = append([]uint64(nil), amountsSat...)
	}
}

func WithClock(now func() time.Time) Option {
	return func(l *Launcher) {
		if now != nil {
			l.now = now
		}
	}
}

func NewLauncher(opts ...Option) *Launcher {
	l := &Launcher{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Launcher) Start(ctx context.Context, cfg daemonconfig.Config) (ports.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Backend != daemonconfig.BackendMock {
		return nil, fmt.Errorf("backend %q is not available in this build", cfg.Backend)
	}
	if cfg.Bitcoind.Addr != "" || cfg.Bitcoind.CookiePath != "" {
		return nil, errors.New("backend mock does not connect to bitcoind, unset bitcoind.addr and bitcoind.cookiePath")
	}
	seed, err := walletSeed(cfg)
	if err != nil {
		return nil, err
	}

	wallet := newWallet(cfg.Network, seed, l.now)
	wallet.descriptor = cfg.Descriptor
	for _, amount := range l.initialCoins {
		wallet.Receive(amount, 6)
	}
	session := newSession(wallet, cfg.PollInterval)

	l.mu.Lock()
	l.last = session
	l.mu.Unlock()
	return session, nil
}

// SeedPath is where a session for cfg keeps its sealed mnemonic.
func SeedPath(cfg daemonconfig.Config) string {
	return filepath.Join(cfg.DataDir, cfg.Network, seedFileName)
}

// walletSeed keys the session. A configured descriptor fixes the keys on its
// own and no mnemonic is created or stored.
func walletSeed(cfg daemonconfig.Config) ([]byte, error) {
	if cfg.Descriptor != "" {
		seed := blake2b.Sum512([]byte(cfg.Descriptor))
		return seed[:], nil
	}
	mnemonic, err := loadOrCreateMnemonic(cfg)
	if err != nil {
		return nil, err
	}
	return bip39.NewSeed(mnemonic, ""), nil
}

// loadOrCreateMnemonic reuses the sealed mnemonic in the data directory when a
// seed passphrase is configured, and creates it on first start. Without a
// passphrase every session gets a fresh in-memory mnemonic.
func loadOrCreateMnemonic(cfg daemonconfig.Config) (string, error) {
	path := SeedPath(cfg)
	label := "mnemonic:" + cfg.Network
	if cfg.SeedPassphrase != "" {
		raw, err := securestore.ReadSealedFile(path, cfg.SeedPassphrase, label)
		switch {
		case err == nil:
			mnemonic := string(raw)
			if !bip39.IsMnemonicValid(mnemonic) {
				return "", fmt.Errorf("wallet seed at %s is not a valid mnemonic", path)
			}
			return mnemonic, nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", fmt.Errorf("open wallet seed: %w", err)
		}
	}

	entropy, err := bip39.NewEntropy(seedEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate wallet entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("derive wallet mnemonic: %w", err)
	}
	if cfg.SeedPassphrase != "" {
		if err := securestore.WriteSealedFile(path, cfg.SeedPassphrase, label, []byte(mnemonic)); err != nil {
			return "", fmt.Errorf("store wallet seed: %w", err)
		}
	}
	return mnemonic, nil
}

// LastSession returns the most recently started session, if any.
func (l *Launcher) LastSession() *Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Session is a running mock daemon. A background poller mines one block per
// poll interval, standing in for the chain poller of a real daemon.
type Session struct {
	wallet *Wallet

	cancel context.CancelFunc
	kill   chan error
	done   chan struct{}

	mu      sync.Mutex
	exitErr error
	stopped bool
}

var _ ports.Handle = (*Session)(nil)

func newSession(wallet *Wallet, pollInterval time.Duration) *Session {
	if pollInterval <= 0 {
		pollInterval = daemonconfig.DefaultConfig().PollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		wallet: wallet,
		cancel: cancel,
		kill:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	go s.runPoller(ctx, pollInterval)
	return s
}

func (s *Session) runPoller(ctx context.Context, interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-s.kill:
			s.mu.Lock()
			s.exitErr = err
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.wallet.MineBlocks(1)
		}
	}
}

func (s *Session) Control() ports.Control {
	return s.wallet
}

func (s *Session) Wallet() *Wallet {
	return s.wallet
}

func (s *Session) IsAlive() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Kill makes the poller exit with err, as if the chain backend had failed.
// It returns once the session reports itself dead.
func (s *Session) Kill(err error) {
	select {
	case s.kill <- err:
	default:
	}
	<-s.done
}

// Stop ends the poller and reports why it died, if it died on its own.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return errors.New("session already stopped")
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.done

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitErr != nil {
		return fmt.Errorf("poller exited: %w", s.exitErr)
	}
	return nil
}
