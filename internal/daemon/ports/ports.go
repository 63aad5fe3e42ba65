package ports

import (
	"context"

	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/pkg/models"
)

// Control is the daemon-control capability. Implementations own all wallet
// logic; callers only select which operation to forward.
type Control interface {
	GetInfo() models.GetInfoResult
	GetNewAddress() models.GetAddressResult
	ListCoins(statuses []models.CoinStatus, outpoints []models.OutPoint) models.ListCoinsResult
	ListSpend() (models.ListSpendResult, error)
	ListConfirmedTransactions(start, end uint32, limit uint64) models.ListTransactionsResult
	ListTransactions(txids []models.Txid) models.ListTransactionsResult

	CreateSpend(
		destinations map[models.Address]uint64,
		outpoints []models.OutPoint,
		feerateVB uint64,
		changeAddress *models.Address,
	) (models.CreateSpendResult, error)
	RBFPsbt(txid models.Txid, isCancel bool, feerateVB *uint64) (models.CreateSpendResult, error)
	UpdateSpend(psbt models.Psbt) error
	DeleteSpend(txid models.Txid)
	BroadcastSpend(txid models.Txid) error
	StartRescan(timestamp uint32) error
	CreateRecovery(address models.Address, feerateVB uint64, sequence *uint16) (models.CreateRecoveryResult, error)

	GetLabels(items []models.LabelItem) models.GetLabelsResult
	UpdateLabels(items map[models.LabelItem]*string)
}

// Handle is one live daemon session. Stop consumes it.
type Handle interface {
	Control() Control
	IsAlive() bool
	Stop() error
}

type Launcher interface {
	Start(ctx context.Context, cfg daemonconfig.Config) (Handle, error)
}

type LauncherFunc func(ctx context.Context, cfg daemonconfig.Config) (Handle, error)

func (f LauncherFunc) Start(ctx context.Context, cfg daemonconfig.Config) (Handle, error) {
	return f(ctx, cfg)
}
