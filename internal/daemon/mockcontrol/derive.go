package mockcontrol

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"

	"walletd/go-backend/internal/daemonconfig"
	"walletd/go-backend/pkg/models"
)

const (
	chainReceive = 0
	chainChange  = 1

	versionMainnet = 0x00
	versionTestnet = 0x6f
)

type keychain struct {
	seed    []byte
	version byte
}

func newKeychain(seed []byte, network string) keychain {
	version := byte(versionTestnet)
	if network == daemonconfig.NetworkBitcoin {
		version = versionMainnet
	}
	return keychain{seed: append([]byte(nil), seed...), version: version}
}

// address derives a base58check pay-to-pubkey-hash style address for
// (chain, index). Derivation is deterministic for a given seed.
func (k keychain) address(chain, index uint32) models.Address {
	h, _ := blake2b.New(20, k.seed)
	var path [8]byte
	binary.BigEndian.PutUint32(path[:4], chain)
	binary.BigEndian.PutUint32(path[4:], index)
	h.Write(path[:])

	payload := make([]byte, 0, 25)
	payload = append(payload, k.version)
	payload = h.Sum(payload)
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	payload = append(payload, second[:4]...)
	return models.Address(base58.Encode(payload))
}

func (k keychain) fingerprint() string {
	sum := blake2b.Sum256(k.seed)
	return hex.EncodeToString(sum[:4])
}

func validAddress(addr models.Address) bool {
	raw, err := base58.Decode(string(addr))
	if err != nil || len(raw) != 25 {
		return false
	}
	first := sha256.Sum256(raw[:21])
	second := sha256.Sum256(first[:])
	return string(second[:4]) == string(raw[21:])
}

func txidOf(raw []byte) models.Txid {
	sum := blake2b.Sum256(raw)
	return models.Txid(hex.EncodeToString(sum[:]))
}
