package stages

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/evstack/ev-derive/types"
)

var (
	// L1InfoDepositerAddress is the sender of the L1 attributes deposit.
	L1InfoDepositerAddress = common.HexToAddress("0xDeaDDEaDDeAdDeAdDEAdDEaddeAddEAdDEAd0001")
	// L1BlockAddress is the L1 block predeploy receiving the L1 attributes.
	L1BlockAddress = common.HexToAddress("0x4200000000000000000000000000000000000015")
	// SequencerFeeVaultAddress receives the L2 block fees.
	SequencerFeeVaultAddress = common.HexToAddress("0x4200000000000000000000000000000000000011")

	// setL1BlockValuesSelector is the selector of
	// setL1BlockValues(uint64,uint64,uint256,bytes32,uint64,bytes32,uint256,uint256).
	setL1BlockValuesSelector = []byte{0x01, 0x5d, 0x8e, 0xb9}
)

const (
	// l1InfoDepositSourceDomain is the source hash domain of L1 info deposits.
	l1InfoDepositSourceDomain = 1

	l1InfoGasPreRegolith = 150_000_000
	l1InfoGas            = 1_000_000
)

// DepositTx is a deposited transaction.
type DepositTx struct {
	SourceHash          common.Hash
	From                common.Address
	To                  *common.Address
	Mint                *big.Int
	Value               *big.Int
	Gas                 uint64
	IsSystemTransaction bool
	Data                []byte
}

// MarshalBinary encodes the transaction as 0x7E ++ rlp(tx).
func (tx *DepositTx) MarshalBinary() ([]byte, error) {
	payload, err := rlp.EncodeToBytes(tx)
	if err != nil {
		return nil, fmt.Errorf("failed to encode deposit: %w", err)
	}
	return append([]byte{types.DepositTxType}, payload...), nil
}

// UnmarshalBinary decodes 0x7E ++ rlp(tx).
func (tx *DepositTx) UnmarshalBinary(data []byte) error {
	if len(data) == 0 || data[0] != types.DepositTxType {
		return fmt.Errorf("not a deposit transaction")
	}
	return rlp.DecodeBytes(data[1:], tx)
}

// L1InfoDepositSourceHash computes the source hash of the L1 info deposit for
// an L1 block and sequence number.
func L1InfoDepositSourceHash(l1Hash common.Hash, seqNumber uint64) common.Hash {
	var seq common.Hash
	binary.BigEndian.PutUint64(seq[24:], seqNumber)
	depositID := crypto.Keccak256Hash(l1Hash.Bytes(), seq.Bytes())

	var domain common.Hash
	binary.BigEndian.PutUint64(domain[24:], l1InfoDepositSourceDomain)
	return crypto.Keccak256Hash(domain.Bytes(), depositID.Bytes())
}

// L1InfoDeposit builds the deposit that records the L1 attributes at the start
// of every L2 block.
func L1InfoDeposit(info types.L1Info, seqNumber uint64, regolith bool) *DepositTx {
	baseFee := info.BlockInfo.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	data := make([]byte, 0, 4+8*32)
	data = append(data, setL1BlockValuesSelector...)
	data = append(data, uint64Word(info.BlockInfo.Number)...)
	data = append(data, uint64Word(info.BlockInfo.Timestamp)...)
	data = append(data, common.BigToHash(baseFee).Bytes()...)
	data = append(data, info.BlockInfo.Hash.Bytes()...)
	data = append(data, uint64Word(seqNumber)...)
	data = append(data, info.SystemConfig.BatcherHash().Bytes()...)
	data = append(data, uint64Word(info.SystemConfig.L1FeeOverhead)...)
	data = append(data, uint64Word(info.SystemConfig.L1FeeScalar)...)

	to := L1BlockAddress
	tx := &DepositTx{
		SourceHash:          L1InfoDepositSourceHash(info.BlockInfo.Hash, seqNumber),
		From:                L1InfoDepositerAddress,
		To:                  &to,
		Mint:                new(big.Int),
		Value:               new(big.Int),
		Gas:                 l1InfoGas,
		IsSystemTransaction: false,
		Data:                data,
	}
	if !regolith {
		tx.Gas = l1InfoGasPreRegolith
		tx.IsSystemTransaction = true
	}
	return tx
}

func uint64Word(v uint64) []byte {
	var w common.Hash
	binary.BigEndian.PutUint64(w[24:], v)
	return w.Bytes()
}
