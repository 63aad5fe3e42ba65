package embedded

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"walletd/go-backend/internal/daemon/ports"
	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/pkg/models"
)

type fakeControl struct {
	mu       sync.Mutex
	calls    map[string]int
	panicOn  string
	failWith error
	hold     time.Duration
	lastPsbt models.Psbt
	info     models.GetInfoResult

	inflight atomic.Int32
	overlap  atomic.Bool
}

var (
	_ ports.Control  = (*fakeControl)(nil)
	_ ports.Handle   = (*fakeHandle)(nil)
	_ ports.Launcher = (*fakeLauncher)(nil)
)

func newFakeControl() *fakeControl {
	return &fakeControl{
		calls: make(map[string]int),
		info:  models.GetInfoResult{Version: "fake-1", Network: "regtest", BlockHeight: 101},
	}
}

func (f *fakeControl) enter(name string) {
	if f.inflight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	f.mu.Lock()
	f.calls[name]++
	panicOn := f.panicOn
	hold := f.hold
	f.mu.Unlock()
	if hold > 0 {
		time.Sleep(hold)
	}
	if panicOn == name {
		f.inflight.Add(-1)
		panic("fake control blew up in " + name)
	}
}

func (f *fakeControl) leave() {
	f.inflight.Add(-1)
}

func (f *fakeControl) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeControl) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeControl) GetInfo() models.GetInfoResult {
	f.enter("GetInfo")
	defer f.leave()
	return f.info
}

func (f *fakeControl) GetNewAddress() models.GetAddressResult {
	f.enter("GetNewAddress")
	defer f.leave()
	return models.GetAddressResult{Address: "addr0", DerivationIndex: 0}
}

func (f *fakeControl) ListCoins(_ []models.CoinStatus, _ []models.OutPoint) models.ListCoinsResult {
	f.enter("ListCoins")
	defer f.leave()
	return models.ListCoinsResult{}
}

func (f *fakeControl) ListSpend() (models.ListSpendResult, error) {
	f.enter("ListSpend")
	defer f.leave()
	return models.ListSpendResult{}, f.failWith
}

func (f *fakeControl) ListConfirmedTransactions(_, _ uint32, _ uint64) models.ListTransactionsResult {
	f.enter("ListConfirmedTransactions")
	defer f.leave()
	return models.ListTransactionsResult{}
}

func (f *fakeControl) ListTransactions(_ []models.Txid) models.ListTransactionsResult {
	f.enter("ListTransactions")
	defer f.leave()
	return models.ListTransactionsResult{}
}

func (f *fakeControl) CreateSpend(_ map[models.Address]uint64, _ []models.OutPoint, _ uint64, _ *models.Address) (models.CreateSpendResult, error) {
	f.enter("CreateSpend")
	defer f.leave()
	return models.CreateSpendResult{Psbt: models.Psbt("psbt")}, f.failWith
}

func (f *fakeControl) RBFPsbt(_ models.Txid, _ bool, _ *uint64) (models.CreateSpendResult, error) {
	f.enter("RBFPsbt")
	defer f.leave()
	return models.CreateSpendResult{Psbt: models.Psbt("rbf")}, f.failWith
}

func (f *fakeControl) UpdateSpend(psbt models.Psbt) error {
	f.enter("UpdateSpend")
	defer f.leave()
	f.mu.Lock()
	f.lastPsbt = psbt
	f.mu.Unlock()
	return f.failWith
}

func (f *fakeControl) DeleteSpend(_ models.Txid) {
	f.enter("DeleteSpend")
	defer f.leave()
}

func (f *fakeControl) BroadcastSpend(_ models.Txid) error {
	f.enter("BroadcastSpend")
	defer f.leave()
	return f.failWith
}

func (f *fakeControl) StartRescan(_ uint32) error {
	f.enter("StartRescan")
	defer f.leave()
	return f.failWith
}

func (f *fakeControl) CreateRecovery(_ models.Address, _ uint64, _ *uint16) (models.CreateRecoveryResult, error) {
	f.enter("CreateRecovery")
	defer f.leave()
	return models.CreateRecoveryResult{Psbt: models.Psbt("recovery")}, f.failWith
}

func (f *fakeControl) GetLabels(items []models.LabelItem) models.GetLabelsResult {
	f.enter("GetLabels")
	defer f.leave()
	labels := make(map[string]string, len(items))
	for _, item := range items {
		labels[item.Value] = "label:" + item.Value
	}
	return models.GetLabelsResult{Labels: labels}
}

func (f *fakeControl) UpdateLabels(_ map[models.LabelItem]*string) {
	f.enter("UpdateLabels")
	defer f.leave()
}

type fakeHandle struct {
	control *fakeControl

	mu            sync.Mutex
	alive         bool
	stopErr       error
	stops         int
	panicLiveness bool
	panicOnStop   bool
}

func (h *fakeHandle) Control() ports.Control {
	return h.control
}

func (h *fakeHandle) IsAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicLiveness {
		panic("liveness check blew up")
	}
	return h.alive
}

func (h *fakeHandle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
	h.alive = false
	if h.panicOnStop {
		panic("shutdown blew up")
	}
	return h.stopErr
}

func (h *fakeHandle) setAlive(v bool) {
	h.mu.Lock()
	h.alive = v
	h.mu.Unlock()
}

func (h *fakeHandle) stopCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stops
}

type fakeLauncher struct {
	handle  *fakeHandle
	err     error
	panicOn bool
	starts  atomic.Int32
}

func (l *fakeLauncher) Start(_ context.Context, _ daemonconfig.Config) (ports.Handle, error) {
	l.starts.Add(1)
	if l.panicOn {
		panic("launcher blew up")
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{handle: &fakeHandle{control: newFakeControl(), alive: true}}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() daemonconfig.Config {
	cfg := daemonconfig.DefaultConfig()
	cfg.Network = daemonconfig.NetworkRegtest
	return cfg
}
