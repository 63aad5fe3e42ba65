package daemon

import (
	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/pkg/models"
)

// Daemon is the application-facing surface of a wallet daemon, embedded or
// remote. Every method returns either its value or an *Error.
type Daemon interface {
	IsExternal() bool
	Config() (daemonconfig.Config, bool)

	IsAlive() error
	Stop() error

	GetInfo() (models.GetInfoResult, error)
	GetNewAddress() (models.GetAddressResult, error)
	ListCoins(statuses []models.CoinStatus, outpoints []models.OutPoint) (models.ListCoinsResult, error)
	ListSpendTxs() (models.ListSpendResult, error)
	ListConfirmedTxs(start, end uint32, limit uint64) (models.ListTransactionsResult, error)
	ListTxs(txids []models.Txid) (models.ListTransactionsResult, error)

	CreateSpendTx(
		outpoints []models.OutPoint,
		destinations map[models.Address]uint64,
		feerateVB uint64,
		changeAddress *models.Address,
	) (models.CreateSpendResult, error)
	RBFPsbt(txid models.Txid, isCancel bool, feerateVB *uint64) (models.CreateSpendResult, error)
	UpdateSpendTx(psbt models.Psbt) error
	DeleteSpendTx(txid models.Txid) error
	BroadcastSpendTx(txid models.Txid) error
	StartRescan(timestamp uint32) error
	CreateRecovery(address models.Address, feerateVB uint64, sequence *uint16) (models.Psbt, error)

	GetLabels(items []models.LabelItem) (map[string]string, error)
	UpdateLabels(items map[models.LabelItem]*string) error
}
