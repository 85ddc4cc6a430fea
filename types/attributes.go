package types

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RawTransaction is an encoded L2 transaction.
type RawTransaction []byte

// MarshalText encodes the transaction as 0x-prefixed hex.
func (tx RawTransaction) MarshalText() ([]byte, error) {
	return hexutil.Bytes(tx).MarshalText()
}

// UnmarshalText decodes 0x-prefixed hex.
func (tx *RawTransaction) UnmarshalText(input []byte) error {
	var b hexutil.Bytes
	if err := b.UnmarshalText(input); err != nil {
		return err
	}
	*tx = RawTransaction(b)
	return nil
}

// IsDeposit reports whether the transaction is a deposit typed transaction.
func (tx RawTransaction) IsDeposit() bool {
	return len(tx) > 0 && tx[0] == DepositTxType
}

// DepositTxType is the EIP-2718 type byte of deposit transactions.
const DepositTxType = 0x7E

// PayloadAttributes are the block building instructions handed to the
// execution engine for one L2 block.
type PayloadAttributes struct {
	Timestamp             hexutil.Uint64   `json:"timestamp"`
	PrevRandao            common.Hash      `json:"prevRandao"`
	SuggestedFeeRecipient common.Address   `json:"suggestedFeeRecipient"`
	Transactions          []RawTransaction `json:"transactions"`
	NoTxPool              bool             `json:"noTxPool"`
	GasLimit              hexutil.Uint64   `json:"gasLimit"`

	// The fields below are not part of the engine API payload; they carry
	// the derivation context of the block.
	Epoch            Epoch  `json:"-"`
	L1InclusionBlock uint64 `json:"-"`
	SeqNumber        uint64 `json:"-"`
}
