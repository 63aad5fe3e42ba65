package mockcontrol

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/internal/securestore"
	"walletd/go-backend/pkg/models"
)

func testConfig() daemonconfig.Config {
	cfg := daemonconfig.DefaultConfig()
	cfg.Network = daemonconfig.NetworkRegtest
	cfg.PollInterval = time.Hour
	return cfg
}

func startSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	h, err := NewLauncher(opts...).Start(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("start mock session: %v", err)
	}
	s := h.(*Session)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func TestLauncherRejectsUnknownBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Backend = "liana"
	_, err := NewLauncher().Start(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "not available") {
		t.Fatalf("expected unavailable backend error, got %v", err)
	}
}

func TestLauncherHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLauncher().Start(ctx, testConfig()); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}

func TestSessionKillAndStop(t *testing.T) {
	s := startSession(t)
	if !s.IsAlive() {
		t.Fatal("fresh session must be alive")
	}
	boom := errors.New("bitcoind connection lost")
	s.Kill(boom)
	if s.IsAlive() {
		t.Fatal("killed session must report dead")
	}
	if err := s.Stop(); !errors.Is(err, boom) {
		t.Fatalf("stop must surface poller error, got %v", err)
	}
	if err := s.Stop(); err == nil {
		t.Fatal("second stop must fail")
	}
}

func TestAddressesAreDeterministicAndValid(t *testing.T) {
	s := startSession(t)
	w := s.Wallet()
	first := w.GetNewAddress()
	second := w.GetNewAddress()
	if first.DerivationIndex != 0 || second.DerivationIndex != 1 {
		t.Fatalf("unexpected derivation indexes: %d %d", first.DerivationIndex, second.DerivationIndex)
	}
	if first.Address == second.Address {
		t.Fatal("addresses must differ per index")
	}
	if !validAddress(first.Address) {
		t.Fatalf("derived address %q must pass checksum", first.Address)
	}
	if got := w.keys.address(chainReceive, 0); got != first.Address {
		t.Fatalf("derivation must be deterministic: %s != %s", got, first.Address)
	}
	if validAddress(models.Address("1111111111")) {
		t.Fatal("garbage address must be rejected")
	}
}

func TestSpendLifecycle(t *testing.T) {
	s := startSession(t, WithInitialCoins(100_000, 50_000))
	w := s.Wallet()

	dest := w.keys.address(chainReceive, 99)
	res, err := w.CreateSpend(map[models.Address]uint64{dest: 60_000}, nil, 2, nil)
	if err != nil {
		t.Fatalf("create spend: %v", err)
	}
	if !res.Funded() {
		t.Fatalf("expected funded spend, missing=%d", res.MissingAmountSat)
	}
	tx, err := decodePsbt(res.Psbt)
	if err != nil {
		t.Fatalf("decode psbt: %v", err)
	}
	txid := tx.txid()

	if err := w.BroadcastSpend(txid); err == nil {
		t.Fatal("unsigned spend must not broadcast")
	}
	signed, err := w.SignSpend(txid)
	if err != nil {
		t.Fatalf("sign spend: %v", err)
	}
	if err := w.UpdateSpend(signed); err != nil {
		t.Fatalf("update spend: %v", err)
	}
	if err := w.BroadcastSpend(txid); err != nil {
		t.Fatalf("broadcast spend: %v", err)
	}

	spending := w.ListCoins([]models.CoinStatus{models.CoinStatusSpending}, nil)
	if len(spending.Coins) != 1 || spending.Coins[0].AmountSat != 100_000 {
		t.Fatalf("expected the 100k coin to be spending, got %+v", spending.Coins)
	}

	bumped := uint64(5)
	rbf, err := w.RBFPsbt(txid, false, &bumped)
	if err != nil {
		t.Fatalf("rbf: %v", err)
	}
	if !rbf.Funded() {
		t.Fatalf("expected funded replacement, missing=%d", rbf.MissingAmountSat)
	}
	lower := uint64(1)
	if _, err := w.RBFPsbt(txid, false, &lower); err == nil {
		t.Fatal("rbf with lower feerate must fail")
	}

	w.MineBlocks(1)
	spent := w.ListCoins([]models.CoinStatus{models.CoinStatusSpent}, nil)
	if len(spent.Coins) != 1 {
		t.Fatalf("expected one spent coin after mining, got %d", len(spent.Coins))
	}
	if _, err := w.RBFPsbt(txid, true, nil); err == nil {
		t.Fatal("confirmed transaction must not be replaceable")
	}
	txs := w.ListTransactions([]models.Txid{txid, "unknown"})
	if len(txs.Transactions) != 1 || txs.Transactions[0].Height == nil {
		t.Fatalf("expected confirmed broadcast tx, got %+v", txs.Transactions)
	}
}

func TestCreateSpendReportsMissingAmount(t *testing.T) {
	s := startSession(t, WithInitialCoins(10_000))
	w := s.Wallet()
	dest := w.keys.address(chainReceive, 42)
	res, err := w.CreateSpend(map[models.Address]uint64{dest: 20_000}, nil, 1, nil)
	if err != nil {
		t.Fatalf("create spend: %v", err)
	}
	if res.Funded() || res.MissingAmountSat == 0 {
		t.Fatalf("expected missing amount, got %+v", res)
	}
	if _, err := w.CreateSpend(map[models.Address]uint64{dest: 1_000}, nil, 0, nil); err == nil {
		t.Fatal("zero feerate must be rejected")
	}
	if _, err := w.CreateSpend(map[models.Address]uint64{"bogus": 1_000}, nil, 1, nil); err == nil {
		t.Fatal("invalid destination must be rejected")
	}
	unknown := models.OutPoint{Txid: "00", Vout: 0}
	if _, err := w.CreateSpend(map[models.Address]uint64{dest: 1_000}, []models.OutPoint{unknown}, 1, nil); !errors.Is(err, ErrUnknownCoin) {
		t.Fatalf("expected unknown coin error, got %v", err)
	}
}

func TestDeleteAndListSpend(t *testing.T) {
	s := startSession(t, WithInitialCoins(80_000))
	w := s.Wallet()
	dest := w.keys.address(chainReceive, 7)
	res, err := w.CreateSpend(map[models.Address]uint64{dest: 10_000}, nil, 1, nil)
	if err != nil {
		t.Fatalf("create spend: %v", err)
	}
	listed, _ := w.ListSpend()
	if len(listed.SpendTxs) != 1 || !bytes.Equal(listed.SpendTxs[0].Psbt, res.Psbt) {
		t.Fatalf("expected stored spend, got %d entries", len(listed.SpendTxs))
	}
	tx, _ := decodePsbt(res.Psbt)
	w.DeleteSpend(tx.txid())
	listed, _ = w.ListSpend()
	if len(listed.SpendTxs) != 0 {
		t.Fatalf("expected no spends after delete, got %d", len(listed.SpendTxs))
	}
	if err := w.UpdateSpend(models.Psbt("not a psbt")); err == nil {
		t.Fatal("garbage psbt must be rejected")
	}
}

func TestRecoveryNeedsMatureCoins(t *testing.T) {
	s := startSession(t, WithInitialCoins(200_000))
	w := s.Wallet()
	addr := w.keys.address(chainReceive, 500)

	if _, err := w.CreateRecovery(addr, 2, nil); err == nil {
		t.Fatal("recovery must fail before the timelock expires")
	}
	seq := uint16(6)
	res, err := w.CreateRecovery(addr, 2, &seq)
	if err != nil {
		t.Fatalf("recovery with short timelock: %v", err)
	}
	tx, err := decodePsbt(res.Psbt)
	if err != nil {
		t.Fatalf("decode recovery psbt: %v", err)
	}
	if tx.Sequence != seq || len(tx.Outputs) != 1 || tx.Outputs[0].Address != addr {
		t.Fatalf("unexpected recovery tx: %+v", tx)
	}
}

func TestLabelsAndRescan(t *testing.T) {
	s := startSession(t)
	w := s.Wallet()
	item := models.LabelItem{Kind: models.LabelItemAddress, Value: "addr1"}
	label := "savings"
	w.UpdateLabels(map[models.LabelItem]*string{item: &label})
	if got := w.GetLabels([]models.LabelItem{item}).Labels["addr1"]; got != "savings" {
		t.Fatalf("unexpected label: %q", got)
	}
	w.UpdateLabels(map[models.LabelItem]*string{item: nil})
	if got := w.GetLabels([]models.LabelItem{item}).Labels; len(got) != 0 {
		t.Fatalf("expected label removed, got %v", got)
	}

	future := uint32(time.Now().Add(time.Hour).Unix())
	if err := w.StartRescan(future); err == nil {
		t.Fatal("rescan from the future must fail")
	}
	if err := w.StartRescan(0); err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if info := w.GetInfo(); info.RescanProgress == nil || *info.RescanProgress != 1 {
		t.Fatalf("expected completed rescan progress, got %v", info.RescanProgress)
	}
}

func TestListConfirmedTransactionsWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	s := startSession(t, WithClock(func() time.Time { return now }), WithInitialCoins(1_000, 2_000, 3_000))
	w := s.Wallet()
	w.Receive(4_000, 0)

	all := w.ListConfirmedTransactions(0, uint32(now.Unix()), 10)
	if len(all.Transactions) != 3 {
		t.Fatalf("expected 3 confirmed txs, got %d", len(all.Transactions))
	}
	limited := w.ListConfirmedTransactions(0, uint32(now.Unix()), 2)
	if len(limited.Transactions) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(limited.Transactions))
	}
	none := w.ListConfirmedTransactions(0, uint32(now.Unix())-1, 10)
	if len(none.Transactions) != 0 {
		t.Fatalf("expected empty window, got %d", len(none.Transactions))
	}
}

func TestSealedSeedSurvivesRestart(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = t.TempDir()
	cfg.SeedPassphrase = "correct horse"

	firstAddress := func() models.Address {
		t.Helper()
		h, err := NewLauncher().Start(context.Background(), cfg)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		defer func() { _ = h.Stop() }()
		return h.Control().GetNewAddress().Address
	}
	a, b := firstAddress(), firstAddress()
	if a != b {
		t.Fatalf("restart must reuse the sealed seed: %s != %s", a, b)
	}

	wrong := cfg
	wrong.SeedPassphrase = "battery staple"
	if _, err := NewLauncher().Start(context.Background(), wrong); err == nil {
		t.Fatal("wrong passphrase must fail to start")
	}

	ephemeral := cfg
	ephemeral.SeedPassphrase = ""
	h, err := NewLauncher().Start(context.Background(), ephemeral)
	if err != nil {
		t.Fatalf("start ephemeral: %v", err)
	}
	defer func() { _ = h.Stop() }()
	if h.Control().GetNewAddress().Address == a {
		t.Fatal("sessions without a passphrase must not reuse the sealed seed")
	}
}

func TestLauncherRefusesBitcoindSettings(t *testing.T) {
	cases := []struct {
		name     string
		bitcoind daemonconfig.BitcoindConfig
	}{
		{"addr", daemonconfig.BitcoindConfig{Addr: "127.0.0.1:18443"}},
		{"cookie", daemonconfig.BitcoindConfig{CookiePath: "/var/lib/bitcoind/.cookie"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Bitcoind = tc.bitcoind
			_, err := NewLauncher().Start(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), "does not connect to bitcoind") {
				t.Fatalf("expected bitcoind settings to be refused, got %v", err)
			}
		})
	}
}

func TestDescriptorPinsWalletKeys(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = t.TempDir()
	cfg.SeedPassphrase = "correct horse"
	cfg.Descriptor = "wsh(multi(1,[d34db33f/48'/1'/0'/2']tpubexample/<0;1>/*))"

	start := func() (models.GetInfoResult, models.Address) {
		t.Helper()
		h, err := NewLauncher().Start(context.Background(), cfg)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		defer func() { _ = h.Stop() }()
		return h.Control().GetInfo(), h.Control().GetNewAddress().Address
	}
	info, first := start()
	if info.Descriptor != cfg.Descriptor {
		t.Fatalf("expected configured descriptor, got %q", info.Descriptor)
	}
	if _, again := start(); again != first {
		t.Fatalf("descriptor must fix the keys: %s != %s", first, again)
	}
	if _, err := os.Stat(SeedPath(cfg)); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("descriptor wallets must not store a mnemonic, stat err=%v", err)
	}

	other := cfg
	other.Descriptor = "wsh(multi(1,[0badf00d/48'/1'/0'/2']tpubother/<0;1>/*))"
	h, err := NewLauncher().Start(context.Background(), other)
	if err != nil {
		t.Fatalf("start other: %v", err)
	}
	defer func() { _ = h.Stop() }()
	if h.Control().GetNewAddress().Address == first {
		t.Fatal("different descriptors must derive different addresses")
	}
}

func TestTamperedSealedSeedFailsStart(t *testing.T) {
	cfg := testConfig()
	cfg.DataDir = t.TempDir()
	cfg.SeedPassphrase = "correct horse"

	h, err := NewLauncher().Start(context.Background(), cfg)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	_ = h.Stop()

	path := SeedPath(cfg)
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read seed: %v", err)
	}
	tampered := bytes.Replace(raw, []byte(`"kdf_time":2`), []byte(`"kdf_time":0`), 1)
	if bytes.Equal(tampered, raw) {
		t.Fatal("sealed seed does not carry the expected kdf_time field")
	}
	if err := os.WriteFile(path, tampered, 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	_, err = NewLauncher().Start(context.Background(), cfg)
	if !errors.Is(err, securestore.ErrInvalid) {
		t.Fatalf("expected invalid envelope error, got %v", err)
	}
}

func TestCreateSpendRejectsDuplicateAndOversizedInputs(t *testing.T) {
	s := startSession(t, WithInitialCoins(50_000, 50_000))
	w := s.Wallet()
	dest := w.keys.address(chainReceive, 9)

	coins := w.ListCoins(nil, nil).Coins
	if len(coins) != 2 {
		t.Fatalf("expected two coins, got %d", len(coins))
	}
	op := coins[0].Outpoint
	_, err := w.CreateSpend(map[models.Address]uint64{dest: 60_000}, []models.OutPoint{op, op}, 1, nil)
	if err == nil || !strings.Contains(err.Error(), "listed twice") {
		t.Fatalf("expected duplicate coin rejection, got %v", err)
	}

	other := w.keys.address(chainReceive, 10)
	huge := map[models.Address]uint64{dest: ^uint64(0) - 100, other: 1_000}
	if _, err := w.CreateSpend(huge, nil, 1, nil); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected oversized amount rejection, got %v", err)
	}
	split := map[models.Address]uint64{dest: maxMoneySat, other: 1_000}
	if _, err := w.CreateSpend(split, nil, 1, nil); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("expected total above max money to be rejected, got %v", err)
	}

	for _, coin := range w.ListCoins(nil, nil).Coins {
		if coin.SpendInfo != nil {
			t.Fatalf("rejected spends must not reserve coins: %+v", coin)
		}
	}
	spends, err := w.ListSpend()
	if err != nil || len(spends.SpendTxs) != 0 {
		t.Fatalf("rejected spends must not be stored, got %+v, %v", spends, err)
	}
}
