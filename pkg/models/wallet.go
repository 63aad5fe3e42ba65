package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Txid string

type Address string

// Psbt is a serialized partially signed bitcoin transaction.
type Psbt []byte

type OutPoint struct {
	Txid Txid   `json:"txid"`
	Vout uint32 `json:"vout"`
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.Vout)
}

func ParseOutPoint(raw string) (OutPoint, error) {
	txid, vout, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || txid == "" {
		return OutPoint{}, errors.New("outpoint must be formatted as txid:vout")
	}
	n, err := strconv.ParseUint(vout, 10, 32)
	if err != nil {
		return OutPoint{}, fmt.Errorf("invalid outpoint vout: %w", err)
	}
	return OutPoint{Txid: Txid(txid), Vout: uint32(n)}, nil
}

type CoinStatus string

const (
	CoinStatusUnconfirmed CoinStatus = "unconfirmed"
	CoinStatusConfirmed   CoinStatus = "confirmed"
	CoinStatusSpending    CoinStatus = "spending"
	CoinStatusSpent       CoinStatus = "spent"
)

type LabelItemKind string

const (
	LabelItemAddress  LabelItemKind = "address"
	LabelItemTxid     LabelItemKind = "txid"
	LabelItemOutPoint LabelItemKind = "outpoint"
)

// LabelItem is comparable so it can key label maps.
type LabelItem struct {
	Kind  LabelItemKind `json:"kind"`
	Value string        `json:"value"`
}

func (l LabelItem) String() string {
	return l.Value
}

type GetInfoResult struct {
	Version           string   `json:"version"`
	Network           string   `json:"network"`
	BlockHeight       int32    `json:"block_height"`
	Sync              float64  `json:"sync"`
	Descriptor        string   `json:"descriptor"`
	RescanProgress    *float64 `json:"rescan_progress,omitempty"`
	Timestamp         uint32   `json:"timestamp"`
	ReceiveIndex      uint32   `json:"receive_index"`
	ChangeIndex       uint32   `json:"change_index"`
	LastPollTimestamp *uint32  `json:"last_poll_timestamp,omitempty"`
}

type GetAddressResult struct {
	Address         Address `json:"address"`
	DerivationIndex uint32  `json:"derivation_index"`
}

type SpendInfo struct {
	Txid   Txid   `json:"txid"`
	Height *int32 `json:"height,omitempty"`
}

type Coin struct {
	Outpoint        OutPoint   `json:"outpoint"`
	AmountSat       uint64     `json:"amount_sat"`
	Address         Address    `json:"address"`
	DerivationIndex uint32     `json:"derivation_index"`
	BlockHeight     *int32     `json:"block_height,omitempty"`
	IsChange        bool       `json:"is_change"`
	IsImmature      bool       `json:"is_immature"`
	SpendInfo       *SpendInfo `json:"spend_info,omitempty"`
}

// Status derives the coin status the daemon filters on.
func (c Coin) Status() CoinStatus {
	switch {
	case c.SpendInfo != nil && c.SpendInfo.Height != nil:
		return CoinStatusSpent
	case c.SpendInfo != nil:
		return CoinStatusSpending
	case c.BlockHeight != nil:
		return CoinStatusConfirmed
	default:
		return CoinStatusUnconfirmed
	}
}

type ListCoinsResult struct {
	Coins []Coin `json:"coins"`
}

type ListSpendEntry struct {
	Psbt    Psbt    `json:"psbt"`
	Updated *uint32 `json:"updated_at,omitempty"`
}

type ListSpendResult struct {
	SpendTxs []ListSpendEntry `json:"spend_txs"`
}

type TransactionInfo struct {
	Txid   Txid    `json:"txid"`
	Tx     []byte  `json:"tx"`
	Height *int32  `json:"height,omitempty"`
	Time   *uint32 `json:"time,omitempty"`
}

type ListTransactionsResult struct {
	Transactions []TransactionInfo `json:"transactions"`
}

// CreateSpendResult carries either a PSBT or the amount still missing to fund it.
type CreateSpendResult struct {
	Psbt             Psbt     `json:"psbt,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	MissingAmountSat uint64   `json:"missing_amount_sat,omitempty"`
}

func (r CreateSpendResult) Funded() bool {
	return len(r.Psbt) > 0
}

type CreateRecoveryResult struct {
	Psbt Psbt `json:"psbt"`
}

type GetLabelsResult struct {
	Labels map[string]string `json:"labels"`
}
