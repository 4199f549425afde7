// Package decode turns raw account snapshot bytes into typed pool and
// position records. Parsing from fixed byte offsets, rather than a
// schema-typed deserializer, lets the daemon consume a firehose of account
// updates without depending on the source program's client library; the
// bin-step sanity check below is the canary that catches layout drift.
package decode

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// Side is which direction a position's liquidity converts.
type Side uint8

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "sell"
	}
	return "buy"
}

// TokenProgramFlag distinguishes the classic SPL token program from the
// token-2022 ("extended") program for a given mint.
type TokenProgramFlag uint8

const (
	TokenProgramStandard TokenProgramFlag = iota
	TokenProgramExtended
)

var (
	ErrTooShort        = errors.New("decode: buffer shorter than expected layout")
	ErrInvalidBinStep  = errors.New("decode: bin step outside valid range [1,500]")
	ErrInvalidSide     = errors.New("decode: side byte is neither buy nor sell")
)

const (
	minBinStep = 1
	maxBinStep = 500
)

// PoolInfo is the decoded snapshot of one pool's current state.
type PoolInfo struct {
	ActiveID        int32
	BinStep         uint16
	Status          uint8
	TokenXMint      solana.PublicKey
	TokenYMint      solana.PublicKey
	ReserveX        solana.PublicKey
	ReserveY        solana.PublicKey
	TokenXFlag      TokenProgramFlag
	TokenYFlag      TokenProgramFlag
}

// DecodePoolInfo parses a pool-state account buffer into a PoolInfo.
func DecodePoolInfo(buf []byte) (PoolInfo, error) {
	if len(buf) < PoolInfoMinSize {
		return PoolInfo{}, fmt.Errorf("%w: need %d bytes, got %d", ErrTooShort, PoolInfoMinSize, len(buf))
	}

	var info PoolInfo
	activeID, err := readInt32(buf, poolActiveIDOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.ActiveID = activeID

	binStep, err := readUint16(buf, poolBinStepOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.BinStep = binStep
	if info.BinStep < minBinStep || info.BinStep > maxBinStep {
		return PoolInfo{}, fmt.Errorf("%w: got %d", ErrInvalidBinStep, info.BinStep)
	}

	status, err := readByte(buf, poolStatusOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.Status = status

	info.TokenXMint, err = readPubkey(buf, poolTokenXMintOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.TokenYMint, err = readPubkey(buf, poolTokenYMintOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.ReserveX, err = readPubkey(buf, poolReserveXOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.ReserveY, err = readPubkey(buf, poolReserveYOffset)
	if err != nil {
		return PoolInfo{}, err
	}

	xFlag, err := readByte(buf, poolTokenXFlagOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.TokenXFlag = TokenProgramFlag(xFlag)

	yFlag, err := readByte(buf, poolTokenYFlagOffset)
	if err != nil {
		return PoolInfo{}, err
	}
	info.TokenYFlag = TokenProgramFlag(yFlag)

	return info, nil
}

// Position is the decoded snapshot of one user's liquidity stake in one
// pool.
type Position struct {
	Owner          solana.PublicKey
	Pool           solana.PublicKey
	Auxiliary      solana.PublicKey
	Side           Side
	MinBin         int32
	MaxBin         int32
	InitialAmount  uint64
	HarvestedAmount uint64
	CreatedAt      int64
}

// Width is maxBin - minBin + 1, the number of bins the position spans.
func (p Position) Width() int32 {
	return p.MaxBin - p.MinBin + 1
}

// DecodePosition parses a position-state account buffer into a Position.
func DecodePosition(buf []byte) (Position, error) {
	if len(buf) < PositionMinSize {
		return Position{}, fmt.Errorf("%w: need %d bytes, got %d", ErrTooShort, PositionMinSize, len(buf))
	}

	var pos Position
	var err error

	pos.Owner, err = readPubkey(buf, posOwnerOffset)
	if err != nil {
		return Position{}, err
	}
	pos.Pool, err = readPubkey(buf, posPoolOffset)
	if err != nil {
		return Position{}, err
	}
	pos.Auxiliary, err = readPubkey(buf, posAuxOffset)
	if err != nil {
		return Position{}, err
	}

	sideByte, err := readByte(buf, posSideOffset)
	if err != nil {
		return Position{}, err
	}
	switch Side(sideByte) {
	case SideBuy, SideSell:
		pos.Side = Side(sideByte)
	default:
		return Position{}, fmt.Errorf("%w: got %d", ErrInvalidSide, sideByte)
	}

	pos.MinBin, err = readInt32(buf, posMinBinOffset)
	if err != nil {
		return Position{}, err
	}
	pos.MaxBin, err = readInt32(buf, posMaxBinOffset)
	if err != nil {
		return Position{}, err
	}
	pos.InitialAmount, err = readUint64(buf, posInitAmountOffset)
	if err != nil {
		return Position{}, err
	}
	pos.HarvestedAmount, err = readUint64(buf, posHarvestedOffset)
	if err != nil {
		return Position{}, err
	}
	createdAt, err := readInt64(buf, posCreatedAtOffset)
	if err != nil {
		return Position{}, err
	}
	pos.CreatedAt = createdAt

	return pos, nil
}

func readUint16(buf []byte, off int) (uint16, error) {
	if off+2 > len(buf) {
		return 0, fmt.Errorf("%w: uint16 at offset %d", ErrTooShort, off)
	}
	d := bin.NewBinDecoder(buf[off : off+2])
	v, err := d.ReadUint16(bin.LE)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func readPubkey(buf []byte, off int) (solana.PublicKey, error) {
	if off+32 > len(buf) {
		return solana.PublicKey{}, fmt.Errorf("%w: pubkey at offset %d", ErrTooShort, off)
	}
	var pk solana.PublicKey
	copy(pk[:], buf[off:off+32])
	return pk, nil
}

func readByte(buf []byte, off int) (uint8, error) {
	if off+1 > len(buf) {
		return 0, fmt.Errorf("%w: byte at offset %d", ErrTooShort, off)
	}
	return buf[off], nil
}

func readInt32(buf []byte, off int) (int32, error) {
	if off+4 > len(buf) {
		return 0, fmt.Errorf("%w: int32 at offset %d", ErrTooShort, off)
	}
	d := bin.NewBinDecoder(buf[off : off+4])
	v, err := d.ReadInt32(bin.LE)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func readUint64(buf []byte, off int) (uint64, error) {
	if off+8 > len(buf) {
		return 0, fmt.Errorf("%w: uint64 at offset %d", ErrTooShort, off)
	}
	d := bin.NewBinDecoder(buf[off : off+8])
	v, err := d.ReadUint64(bin.LE)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func readInt64(buf []byte, off int) (int64, error) {
	if off+8 > len(buf) {
		return 0, fmt.Errorf("%w: int64 at offset %d", ErrTooShort, off)
	}
	d := bin.NewBinDecoder(buf[off : off+8])
	v, err := d.ReadInt64(bin.LE)
	if err != nil {
		return 0, err
	}
	return v, nil
}
