package mockcontrol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"walletd/go-backend/pkg/models"
)

// psbtMagic matches the BIP174 prefix so mock PSBTs look like real ones to
// code that only sniffs the header.
var psbtMagic = []byte{'p', 's', 'b', 't', 0xff}

type txOutput struct {
	Address         models.Address `json:"address"`
	AmountSat       uint64         `json:"amount_sat"`
	IsChange        bool           `json:"is_change,omitempty"`
	DerivationIndex uint32         `json:"derivation_index,omitempty"`
}

type mockTx struct {
	Inputs    []models.OutPoint `json:"inputs"`
	Outputs   []txOutput        `json:"outputs"`
	FeerateVB uint64            `json:"feerate_vb"`
	FeeSat    uint64            `json:"fee_sat"`
	Sequence  uint16            `json:"sequence,omitempty"`
	Signed    bool              `json:"signed,omitempty"`
}

func (tx mockTx) encode() models.Psbt {
	body, err := json.Marshal(tx)
	if err != nil {
		// mockTx only holds plain values.
		panic(fmt.Sprintf("mockcontrol: encode psbt: %v", err))
	}
	return models.Psbt(append(append([]byte(nil), psbtMagic...), body...))
}

func (tx mockTx) txid() models.Txid {
	unsigned := tx
	unsigned.Signed = false
	return txidOf(unsigned.encode())
}

func decodePsbt(psbt models.Psbt) (mockTx, error) {
	if !bytes.HasPrefix(psbt, psbtMagic) {
		return mockTx{}, errors.New("invalid psbt: missing magic bytes")
	}
	var tx mockTx
	if err := json.Unmarshal(psbt[len(psbtMagic):], &tx); err != nil {
		return mockTx{}, fmt.Errorf("invalid psbt: %w", err)
	}
	if len(tx.Inputs) == 0 {
		return mockTx{}, errors.New("invalid psbt: no inputs")
	}
	return tx, nil
}

func estimateVsize(inputs, outputs int) uint64 {
	return uint64(11 + 68*inputs + 31*outputs)
}
