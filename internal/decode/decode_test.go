package decode

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func buildPoolBuf(activeID int32, binStep uint16, status uint8, xMint, yMint, rX, rY solana.PublicKey, xFlag, yFlag uint8) []byte {
	buf := make([]byte, PoolInfoMinSize)
	binary.LittleEndian.PutUint32(buf[poolActiveIDOffset:], uint32(activeID))
	binary.LittleEndian.PutUint16(buf[poolBinStepOffset:], binStep)
	buf[poolStatusOffset] = status
	copy(buf[poolTokenXMintOffset:], xMint[:])
	copy(buf[poolTokenYMintOffset:], yMint[:])
	copy(buf[poolReserveXOffset:], rX[:])
	copy(buf[poolReserveYOffset:], rY[:])
	buf[poolTokenXFlagOffset] = xFlag
	buf[poolTokenYFlagOffset] = yFlag
	return buf
}

func TestDecodePoolInfoRoundTrip(t *testing.T) {
	xMint := solana.NewWallet().PublicKey()
	yMint := solana.NewWallet().PublicKey()
	rX := solana.NewWallet().PublicKey()
	rY := solana.NewWallet().PublicKey()

	buf := buildPoolBuf(-42, 25, 1, xMint, yMint, rX, rY, 0, 1)

	info, err := DecodePoolInfo(buf)
	require.NoError(t, err)
	require.Equal(t, int32(-42), info.ActiveID)
	require.Equal(t, uint16(25), info.BinStep)
	require.Equal(t, uint8(1), info.Status)
	require.Equal(t, xMint, info.TokenXMint)
	require.Equal(t, yMint, info.TokenYMint)
	require.Equal(t, rX, info.ReserveX)
	require.Equal(t, rY, info.ReserveY)
	require.Equal(t, TokenProgramStandard, info.TokenXFlag)
	require.Equal(t, TokenProgramExtended, info.TokenYFlag)
}

func TestDecodePoolInfoTooShort(t *testing.T) {
	_, err := DecodePoolInfo(make([]byte, PoolInfoMinSize-1))
	require.ErrorIs(t, err, ErrTooShort)
}

func TestDecodePoolInfoInvalidBinStep(t *testing.T) {
	zero := solana.PublicKey{}
	for _, step := range []uint16{0, 501, 5000} {
		buf := buildPoolBuf(0, step, 0, zero, zero, zero, zero, 0, 0)
		_, err := DecodePoolInfo(buf)
		require.ErrorIs(t, err, ErrInvalidBinStep, "binStep=%d", step)
	}
}

func TestDecodePoolInfoBoundaryBinSteps(t *testing.T) {
	zero := solana.PublicKey{}
	for _, step := range []uint16{1, 500} {
		buf := buildPoolBuf(0, step, 0, zero, zero, zero, zero, 0, 0)
		info, err := DecodePoolInfo(buf)
		require.NoError(t, err)
		require.Equal(t, step, info.BinStep)
	}
}

func buildPositionBuf(owner, pool, aux solana.PublicKey, side Side, minBin, maxBin int32, initAmt, harvested uint64, createdAt int64) []byte {
	buf := make([]byte, PositionMinSize)
	copy(buf[posOwnerOffset:], owner[:])
	copy(buf[posPoolOffset:], pool[:])
	copy(buf[posAuxOffset:], aux[:])
	buf[posSideOffset] = byte(side)
	binary.LittleEndian.PutUint32(buf[posMinBinOffset:], uint32(minBin))
	binary.LittleEndian.PutUint32(buf[posMaxBinOffset:], uint32(maxBin))
	binary.LittleEndian.PutUint64(buf[posInitAmountOffset:], initAmt)
	binary.LittleEndian.PutUint64(buf[posHarvestedOffset:], harvested)
	binary.LittleEndian.PutUint64(buf[posCreatedAtOffset:], uint64(createdAt))
	return buf
}

func TestDecodePositionRoundTrip(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	aux := solana.NewWallet().PublicKey()

	buf := buildPositionBuf(owner, pool, aux, SideSell, -5, 10, 1_000_000, 250_000, 1700000000)

	pos, err := DecodePosition(buf)
	require.NoError(t, err)
	require.Equal(t, owner, pos.Owner)
	require.Equal(t, pool, pos.Pool)
	require.Equal(t, aux, pos.Auxiliary)
	require.Equal(t, SideSell, pos.Side)
	require.Equal(t, int32(-5), pos.MinBin)
	require.Equal(t, int32(10), pos.MaxBin)
	require.EqualValues(t, 16, pos.Width())
	require.Equal(t, uint64(1_000_000), pos.InitialAmount)
	require.Equal(t, uint64(250_000), pos.HarvestedAmount)
	require.Equal(t, int64(1700000000), pos.CreatedAt)
}

func TestDecodePositionTooShort(t *testing.T) {
	_, err := DecodePosition(make([]byte, PositionMinSize-1))
	require.ErrorIs(t, err, ErrTooShort)
}

func TestDecodePositionInvalidSide(t *testing.T) {
	zero := solana.PublicKey{}
	buf := buildPositionBuf(zero, zero, zero, Side(7), 0, 1, 0, 0, 0)
	_, err := DecodePosition(buf)
	require.ErrorIs(t, err, ErrInvalidSide)
}
