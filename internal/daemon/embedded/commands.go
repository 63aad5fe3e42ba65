package embedded

import (
	"bytes"

	"walletd/go-backend/internal/daemon/ports"
	"walletd/go-backend/pkg/models"
)

func (d *Daemon) GetInfo() (models.GetInfoResult, error) {
	return Command(d, "get_info", func(c ports.Control) (models.GetInfoResult, error) {
		return c.GetInfo(), nil
	})
}

func (d *Daemon) GetNewAddress() (models.GetAddressResult, error) {
	return Command(d, "get_new_address", func(c ports.Control) (models.GetAddressResult, error) {
		return c.GetNewAddress(), nil
	})
}

func (d *Daemon) ListCoins(statuses []models.CoinStatus, outpoints []models.OutPoint) (models.ListCoinsResult, error) {
	return Command(d, "list_coins", func(c ports.Control) (models.ListCoinsResult, error) {
		return c.ListCoins(statuses, outpoints), nil
	})
}

func (d *Daemon) ListSpendTxs() (models.ListSpendResult, error) {
	return Command(d, "list_spend_txs", func(c ports.Control) (models.ListSpendResult, error) {
		return c.ListSpend()
	})
}

func (d *Daemon) ListConfirmedTxs(start, end uint32, limit uint64) (models.ListTransactionsResult, error) {
	return Command(d, "list_confirmed_txs", func(c ports.Control) (models.ListTransactionsResult, error) {
		return c.ListConfirmedTransactions(start, end, limit), nil
	})
}

func (d *Daemon) ListTxs(txids []models.Txid) (models.ListTransactionsResult, error) {
	return Command(d, "list_txs", func(c ports.Control) (models.ListTransactionsResult, error) {
		return c.ListTransactions(txids), nil
	})
}

func (d *Daemon) CreateSpendTx(
	outpoints []models.OutPoint,
	destinations map[models.Address]uint64,
	feerateVB uint64,
	changeAddress *models.Address,
) (models.CreateSpendResult, error) {
	return Command(d, "create_spend_tx", func(c ports.Control) (models.CreateSpendResult, error) {
		return c.CreateSpend(destinations, outpoints, feerateVB, changeAddress)
	})
}

func (d *Daemon) RBFPsbt(txid models.Txid, isCancel bool, feerateVB *uint64) (models.CreateSpendResult, error) {
	return Command(d, "rbf_psbt", func(c ports.Control) (models.CreateSpendResult, error) {
		return c.RBFPsbt(txid, isCancel, feerateVB)
	})
}

// UpdateSpendTx hands the daemon its own copy of psbt.
func (d *Daemon) UpdateSpendTx(psbt models.Psbt) error {
	_, err := Command(d, "update_spend_tx", func(c ports.Control) (struct{}, error) {
		return struct{}{}, c.UpdateSpend(models.Psbt(bytes.Clone(psbt)))
	})
	return err
}

func (d *Daemon) DeleteSpendTx(txid models.Txid) error {
	_, err := Command(d, "delete_spend_tx", func(c ports.Control) (struct{}, error) {
		c.DeleteSpend(txid)
		return struct{}{}, nil
	})
	return err
}

func (d *Daemon) BroadcastSpendTx(txid models.Txid) error {
	_, err := Command(d, "broadcast_spend_tx", func(c ports.Control) (struct{}, error) {
		return struct{}{}, c.BroadcastSpend(txid)
	})
	return err
}

func (d *Daemon) StartRescan(timestamp uint32) error {
	_, err := Command(d, "start_rescan", func(c ports.Control) (struct{}, error) {
		return struct{}{}, c.StartRescan(timestamp)
	})
	return err
}

func (d *Daemon) CreateRecovery(address models.Address, feerateVB uint64, sequence *uint16) (models.Psbt, error) {
	return Command(d, "create_recovery", func(c ports.Control) (models.Psbt, error) {
		res, err := c.CreateRecovery(address, feerateVB, sequence)
		if err != nil {
			return nil, err
		}
		return res.Psbt, nil
	})
}

func (d *Daemon) GetLabels(items []models.LabelItem) (map[string]string, error) {
	return Command(d, "get_labels", func(c ports.Control) (map[string]string, error) {
		return c.GetLabels(items).Labels, nil
	})
}

func (d *Daemon) UpdateLabels(items map[models.LabelItem]*string) error {
	_, err := Command(d, "update_labels", func(c ports.Control) (struct{}, error) {
		c.UpdateLabels(items)
		return struct{}{}, nil
	})
	return err
}
