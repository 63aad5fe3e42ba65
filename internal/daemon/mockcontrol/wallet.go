package mockcontrol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"walletd/go-backend/internal/daemon/ports"
	"walletd/go-backend/pkg/models"
)

const (
	mockVersion = "0.1.0-mock"

	minFeerateVB  = 1
	maxFeerateVB  = 1000
	dustLimitSat  = 546
	maxMoneySat   = 21_000_000 * 100_000_000
	genesisHeight = 800_000

	defaultRecoveryTimelock uint16 = 4032
)

var (
	ErrSpendNotFound = errors.New("unknown spend transaction")
	ErrUnknownCoin   = errors.New("unknown coin")
)

type spendEntry struct {
	tx        mockTx
	psbt      models.Psbt
	updated   uint32
	broadcast bool
}

// Wallet is an in-memory stand-in for the daemon-control capability. It keeps
// just enough chain state to make the command set behave plausibly.
type Wallet struct {
	mu sync.Mutex

	network          string
	descriptor       string
	keys             keychain
	now              func() time.Time
	createdAt        time.Time
	tip              int32
	receiveIndex     uint32
	changeIndex      uint32
	fundingCounter   uint32
	recoveryTimelock uint16
	rescanProgress   *float64
	lastPoll         *uint32

	coins  map[models.OutPoint]*models.Coin
	spends map[models.Txid]*spendEntry
	txs    map[models.Txid]*models.TransactionInfo
	labels map[models.LabelItem]string
}

var _ ports.Control = (*Wallet)(nil)

func newWallet(network string, seed []byte, now func() time.Time) *Wallet {
	return &Wallet{
		network:          network,
		keys:             newKeychain(seed, network),
		now:              now,
		createdAt:        now(),
		tip:              genesisHeight,
		recoveryTimelock: defaultRecoveryTimelock,
		coins:            make(map[models.OutPoint]*models.Coin),
		spends:           make(map[models.Txid]*spendEntry),
		txs:              make(map[models.Txid]*models.TransactionInfo),
		labels:           make(map[models.LabelItem]string),
	}
}

func (w *Wallet) unixNow() uint32 {
	return uint32(w.now().Unix())
}

// Receive credits the wallet with a coin paying to its next receive address.
// confirmations <= 0 leaves the coin unconfirmed.
func (w *Wallet) Receive(amountSat uint64, confirmations int32) models.OutPoint {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.fundingCounter++
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], w.fundingCounter)
	txid := txidOf(append([]byte(w.keys.fingerprint()+"/funding/"), buf[:]...))
	index := w.receiveIndex
	w.receiveIndex++

	op := models.OutPoint{Txid: txid, Vout: 0}
	coin := &models.Coin{
		Outpoint:        op,
		AmountSat:       amountSat,
		Address:         w.keys.address(chainReceive, index),
		DerivationIndex: index,
	}
	info := &models.TransactionInfo{Txid: txid, Tx: []byte(txid)}
	if confirmations > 0 {
		height := w.tip - confirmations + 1
		ts := w.unixNow()
		coin.BlockHeight = &height
		info.Height = &height
		info.Time = &ts
	}
	w.coins[op] = coin
	w.txs[txid] = info
	return op
}

// MineBlocks advances the chain tip and confirms every pending transaction
// in the first new block.
func (w *Wallet) MineBlocks(n int32) {
	if n <= 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	height := w.tip + 1
	ts := w.unixNow()
	w.tip += n
	w.lastPoll = &ts
	for _, info := range w.txs {
		if info.Height == nil {
			h := height
			t := ts
			info.Height = &h
			info.Time = &t
		}
	}
	for _, coin := range w.coins {
		if coin.BlockHeight == nil {
			h := height
			coin.BlockHeight = &h
		}
		if coin.SpendInfo != nil && coin.SpendInfo.Height == nil {
			h := height
			coin.SpendInfo.Height = &h
		}
	}
}

func (w *Wallet) GetInfo() models.GetInfoResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	var progress *float64
	if w.rescanProgress != nil {
		p := *w.rescanProgress
		progress = &p
	}
	var lastPoll *uint32
	if w.lastPoll != nil {
		ts := *w.lastPoll
		lastPoll = &ts
	}
	descriptor := w.descriptor
	if descriptor == "" {
		descriptor = fmt.Sprintf("wsh(multi(1,[%s/48'/0'/0'/2']mock/<0;1>/*))", w.keys.fingerprint())
	}
	return models.GetInfoResult{
		Version:           mockVersion,
		Network:           w.network,
		BlockHeight:       w.tip,
		Sync:              1.0,
		Descriptor:        descriptor,
		RescanProgress:    progress,
		Timestamp:         uint32(w.createdAt.Unix()),
		ReceiveIndex:      w.receiveIndex,
		ChangeIndex:       w.changeIndex,
		LastPollTimestamp: lastPoll,
	}
}

func (w *Wallet) GetNewAddress() models.GetAddressResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	index := w.receiveIndex
	w.receiveIndex++
	return models.GetAddressResult{
		Address:         w.keys.address(chainReceive, index),
		DerivationIndex: index,
	}
}

func (w *Wallet) ListCoins(statuses []models.CoinStatus, outpoints []models.OutPoint) models.ListCoinsResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	wantStatus := make(map[models.CoinStatus]struct{}, len(statuses))
	for _, s := range statuses {
		wantStatus[s] = struct{}{}
	}
	wantOutpoint := make(map[models.OutPoint]struct{}, len(outpoints))
	for _, op := range outpoints {
		wantOutpoint[op] = struct{}{}
	}

	coins := make([]models.Coin, 0, len(w.coins))
	for op, coin := range w.coins {
		if len(wantStatus) > 0 {
			if _, ok := wantStatus[coin.Status()]; !ok {
				continue
			}
		}
		if len(wantOutpoint) > 0 {
			if _, ok := wantOutpoint[op]; !ok {
				continue
			}
		}
		coins = append(coins, copyCoin(coin))
	}
	sort.Slice(coins, func(i, j int) bool {
		return coins[i].Outpoint.String() < coins[j].Outpoint.String()
	})
	return models.ListCoinsResult{Coins: coins}
}

func (w *Wallet) ListSpend() (models.ListSpendResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.ListSpendEntry, 0, len(w.spends))
	for _, entry := range w.spends {
		updated := entry.updated
		out = append(out, models.ListSpendEntry{
			Psbt:    append(models.Psbt(nil), entry.psbt...),
			Updated: &updated,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return *out[i].Updated > *out[j].Updated
	})
	return models.ListSpendResult{SpendTxs: out}, nil
}

func (w *Wallet) ListConfirmedTransactions(start, end uint32, limit uint64) models.ListTransactionsResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.TransactionInfo, 0)
	for _, info := range w.txs {
		if info.Height == nil || info.Time == nil {
			continue
		}
		if *info.Time < start || *info.Time > end {
			continue
		}
		out = append(out, copyTx(info))
	}
	sort.Slice(out, func(i, j int) bool {
		if *out[i].Time != *out[j].Time {
			return *out[i].Time > *out[j].Time
		}
		return out[i].Txid < out[j].Txid
	})
	if uint64(len(out)) > limit {
		out = out[:limit]
	}
	return models.ListTransactionsResult{Transactions: out}
}

func (w *Wallet) ListTransactions(txids []models.Txid) models.ListTransactionsResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]models.TransactionInfo, 0, len(txids))
	for _, txid := range txids {
		if info, ok := w.txs[txid]; ok {
			out = append(out, copyTx(info))
		}
	}
	return models.ListTransactionsResult{Transactions: out}
}

func (w *Wallet) CreateSpend(
	destinations map[models.Address]uint64,
	outpoints []models.OutPoint,
	feerateVB uint64,
	changeAddress *models.Address,
) (models.CreateSpendResult, error) {
	if err := checkFeerate(feerateVB); err != nil {
		return models.CreateSpendResult{}, err
	}
	if len(destinations) == 0 && len(outpoints) == 0 {
		return models.CreateSpendResult{}, errors.New("spend needs destinations or coins to consolidate")
	}
	if changeAddress != nil && !validAddress(*changeAddress) {
		return models.CreateSpendResult{}, fmt.Errorf("invalid change address %q", *changeAddress)
	}
	outputs := make([]txOutput, 0, len(destinations)+1)
	var target uint64
	for addr, amount := range destinations {
		if !validAddress(addr) {
			return models.CreateSpendResult{}, fmt.Errorf("invalid destination address %q", addr)
		}
		if amount < dustLimitSat {
			return models.CreateSpendResult{}, fmt.Errorf("amount %d sat to %s is below dust limit", amount, addr)
		}
		if amount > maxMoneySat || target+amount > maxMoneySat {
			return models.CreateSpendResult{}, fmt.Errorf("spend total exceeds %d sat", uint64(maxMoneySat))
		}
		target += amount
		outputs = append(outputs, txOutput{Address: addr, AmountSat: amount})
	}
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Address < outputs[j].Address })

	w.mu.Lock()
	defer w.mu.Unlock()

	var selected []*models.Coin
	if len(outpoints) > 0 {
		seen := make(map[models.OutPoint]struct{}, len(outpoints))
		for _, op := range outpoints {
			if _, dup := seen[op]; dup {
				return models.CreateSpendResult{}, fmt.Errorf("coin %s is listed twice", op)
			}
			seen[op] = struct{}{}
			coin, ok := w.coins[op]
			if !ok {
				return models.CreateSpendResult{}, fmt.Errorf("%w: %s", ErrUnknownCoin, op)
			}
			if coin.SpendInfo != nil {
				return models.CreateSpendResult{}, fmt.Errorf("coin %s is already being spent", op)
			}
			selected = append(selected, coin)
		}
	} else {
		selected = w.selectCoinsLocked(target, feerateVB, len(outputs)+1)
	}

	var total uint64
	inputs := make([]models.OutPoint, 0, len(selected))
	for _, coin := range selected {
		total += coin.AmountSat
		inputs = append(inputs, coin.Outpoint)
	}
	fee := feerateVB * estimateVsize(len(inputs), len(outputs)+1)
	if total < target+fee {
		return models.CreateSpendResult{MissingAmountSat: target + fee - total}, nil
	}

	var warnings []string
	change := total - target - fee
	if change < dustLimitSat {
		fee += change
		if change > 0 {
			warnings = append(warnings, fmt.Sprintf("dust change of %d sat was added to the fee", change))
		}
	} else {
		outputs = append(outputs, w.changeOutputLocked(changeAddress, change))
	}

	tx := mockTx{Inputs: inputs, Outputs: outputs, FeerateVB: feerateVB, FeeSat: fee}
	psbt := w.storeSpendLocked(tx, false)
	return models.CreateSpendResult{Psbt: psbt, Warnings: warnings}, nil
}

func (w *Wallet) RBFPsbt(txid models.Txid, isCancel bool, feerateVB *uint64) (models.CreateSpendResult, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, ok := w.spends[txid]
	if !ok {
		return models.CreateSpendResult{}, fmt.Errorf("%w: %s", ErrSpendNotFound, txid)
	}
	if info, known := w.txs[txid]; !prev.broadcast || !known || info.Height != nil {
		return models.CreateSpendResult{}, fmt.Errorf("transaction %s is not an unconfirmed broadcast spend", txid)
	}

	var feerate uint64
	switch {
	case feerateVB != nil:
		feerate = *feerateVB
	case isCancel:
		feerate = prev.tx.FeerateVB + 1
	default:
		return models.CreateSpendResult{}, errors.New("feerate is required to bump the fee")
	}
	if err := checkFeerate(feerate); err != nil {
		return models.CreateSpendResult{}, err
	}
	if feerate <= prev.tx.FeerateVB {
		return models.CreateSpendResult{}, fmt.Errorf("feerate must exceed previous feerate of %d sat/vb", prev.tx.FeerateVB)
	}

	var total uint64
	for _, op := range prev.tx.Inputs {
		if coin, ok := w.coins[op]; ok {
			total += coin.AmountSat
		}
	}
	var outputs []txOutput
	var target uint64
	if !isCancel {
		for _, out := range prev.tx.Outputs {
			if !out.IsChange {
				outputs = append(outputs, out)
				target += out.AmountSat
			}
		}
	}
	fee := feerate * estimateVsize(len(prev.tx.Inputs), len(outputs)+1)
	if total < target+fee+dustLimitSat {
		return models.CreateSpendResult{MissingAmountSat: target + fee + dustLimitSat - total}, nil
	}
	outputs = append(outputs, w.changeOutputLocked(nil, total-target-fee))

	tx := mockTx{Inputs: prev.tx.Inputs, Outputs: outputs, FeerateVB: feerate, FeeSat: fee}
	return models.CreateSpendResult{Psbt: w.storeSpendLocked(tx, false)}, nil
}

func (w *Wallet) UpdateSpend(psbt models.Psbt) error {
	tx, err := decodePsbt(psbt)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, op := range tx.Inputs {
		if _, ok := w.coins[op]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCoin, op)
		}
	}
	broadcast := false
	if prev, ok := w.spends[tx.txid()]; ok {
		broadcast = prev.broadcast
		tx.Signed = tx.Signed || prev.tx.Signed
	}
	w.storeSpendLocked(tx, broadcast)
	return nil
}

func (w *Wallet) DeleteSpend(txid models.Txid) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.spends, txid)
}

func (w *Wallet) BroadcastSpend(txid models.Txid) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	entry, ok := w.spends[txid]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSpendNotFound, txid)
	}
	if !entry.tx.Signed {
		return fmt.Errorf("spend %s is not signed", txid)
	}
	if entry.broadcast {
		return nil
	}
	for _, op := range entry.tx.Inputs {
		coin, ok := w.coins[op]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownCoin, op)
		}
		if coin.SpendInfo != nil && coin.SpendInfo.Height != nil {
			return fmt.Errorf("coin %s is already spent", op)
		}
	}
	for _, op := range entry.tx.Inputs {
		w.coins[op].SpendInfo = &models.SpendInfo{Txid: txid}
	}
	for vout, out := range entry.tx.Outputs {
		if !out.IsChange {
			continue
		}
		op := models.OutPoint{Txid: txid, Vout: uint32(vout)}
		w.coins[op] = &models.Coin{
			Outpoint:        op,
			AmountSat:       out.AmountSat,
			Address:         out.Address,
			DerivationIndex: out.DerivationIndex,
			IsChange:        true,
		}
	}
	entry.broadcast = true
	w.txs[txid] = &models.TransactionInfo{Txid: txid, Tx: append([]byte(nil), entry.psbt...)}
	return nil
}

func (w *Wallet) StartRescan(timestamp uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timestamp > w.unixNow() {
		return errors.New("rescan timestamp is in the future")
	}
	if w.rescanProgress != nil && *w.rescanProgress < 1 {
		return errors.New("there is already a rescan ongoing")
	}
	done := 1.0
	w.rescanProgress = &done
	return nil
}

func (w *Wallet) CreateRecovery(address models.Address, feerateVB uint64, sequence *uint16) (models.CreateRecoveryResult, error) {
	if !validAddress(address) {
		return models.CreateRecoveryResult{}, fmt.Errorf("invalid recovery address %q", address)
	}
	if err := checkFeerate(feerateVB); err != nil {
		return models.CreateRecoveryResult{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	timelock := w.recoveryTimelock
	if sequence != nil {
		timelock = *sequence
	}
	var inputs []models.OutPoint
	var total uint64
	for op, coin := range w.coins {
		if coin.BlockHeight == nil || coin.SpendInfo != nil {
			continue
		}
		if w.tip-*coin.BlockHeight+1 < int32(timelock) {
			continue
		}
		inputs = append(inputs, op)
		total += coin.AmountSat
	}
	if len(inputs) == 0 {
		return models.CreateRecoveryResult{}, errors.New("no coin currently spendable through the recovery path")
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].String() < inputs[j].String() })
	fee := feerateVB * estimateVsize(len(inputs), 1)
	if total < fee+dustLimitSat {
		return models.CreateRecoveryResult{}, errors.New("recovery coins do not cover the fee")
	}
	tx := mockTx{
		Inputs:    inputs,
		Outputs:   []txOutput{{Address: address, AmountSat: total - fee}},
		FeerateVB: feerateVB,
		FeeSat:    fee,
		Sequence:  timelock,
	}
	return models.CreateRecoveryResult{Psbt: tx.encode()}, nil
}

func (w *Wallet) GetLabels(items []models.LabelItem) models.GetLabelsResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	labels := make(map[string]string, len(items))
	for _, item := range items {
		if label, ok := w.labels[item]; ok {
			labels[item.Value] = label
		}
	}
	return models.GetLabelsResult{Labels: labels}
}

func (w *Wallet) UpdateLabels(items map[models.LabelItem]*string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for item, label := range items {
		if label == nil {
			delete(w.labels, item)
			continue
		}
		w.labels[item] = *label
	}
}

// SignSpend marks a stored spend as signed, standing in for a hardware signer.
func (w *Wallet) SignSpend(txid models.Txid) (models.Psbt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	entry, ok := w.spends[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSpendNotFound, txid)
	}
	entry.tx.Signed = true
	entry.psbt = entry.tx.encode()
	entry.updated = w.unixNow()
	return append(models.Psbt(nil), entry.psbt...), nil
}

func (w *Wallet) selectCoinsLocked(target, feerateVB uint64, outputs int) []*models.Coin {
	candidates := make([]*models.Coin, 0, len(w.coins))
	for _, coin := range w.coins {
		if coin.BlockHeight != nil && coin.SpendInfo == nil {
			candidates = append(candidates, coin)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].AmountSat != candidates[j].AmountSat {
			return candidates[i].AmountSat > candidates[j].AmountSat
		}
		return candidates[i].Outpoint.String() < candidates[j].Outpoint.String()
	})
	var selected []*models.Coin
	var total uint64
	for _, coin := range candidates {
		selected = append(selected, coin)
		total += coin.AmountSat
		if total >= target+feerateVB*estimateVsize(len(selected), outputs) {
			break
		}
	}
	return selected
}

func (w *Wallet) changeOutputLocked(requested *models.Address, amountSat uint64) txOutput {
	out := txOutput{AmountSat: amountSat, IsChange: true}
	if requested != nil {
		out.Address = *requested
		return out
	}
	out.DerivationIndex = w.changeIndex
	out.Address = w.keys.address(chainChange, w.changeIndex)
	w.changeIndex++
	return out
}

func (w *Wallet) storeSpendLocked(tx mockTx, broadcast bool) models.Psbt {
	psbt := tx.encode()
	w.spends[tx.txid()] = &spendEntry{
		tx:        tx,
		psbt:      psbt,
		updated:   w.unixNow(),
		broadcast: broadcast,
	}
	return append(models.Psbt(nil), psbt...)
}

func checkFeerate(feerateVB uint64) error {
	if feerateVB < minFeerateVB || feerateVB > maxFeerateVB {
		return fmt.Errorf("feerate %d sat/vb is outside [%d, %d]", feerateVB, minFeerateVB, maxFeerateVB)
	}
	return nil
}

func copyCoin(c *models.Coin) models.Coin {
	out := *c
	if c.BlockHeight != nil {
		h := *c.BlockHeight
		out.BlockHeight = &h
	}
	if c.SpendInfo != nil {
		si := *c.SpendInfo
		if c.SpendInfo.Height != nil {
			h := *c.SpendInfo.Height
			si.Height = &h
		}
		out.SpendInfo = &si
	}
	return out
}

func copyTx(info *models.TransactionInfo) models.TransactionInfo {
	out := *info
	out.Tx = append([]byte(nil), info.Tx...)
	if info.Height != nil {
		h := *info.Height
		out.Height = &h
	}
	if info.Time != nil {
		t := *info.Time
		out.Time = &t
	}
	return out
}
