package decode

// Byte layout for pool-state and position-state accounts. Centralizing the
// offsets here, rather than scattering magic numbers through the decode
// functions, is what lets the bin-step sanity check in DecodePoolInfo act as
// a canary for layout drift.
const (
	// discriminatorLen is the 8-byte anchor-style account discriminator every
	// snapshot is prefixed with.
	discriminatorLen = 8

	poolActiveIDOffset    = discriminatorLen       // int32
	poolBinStepOffset     = poolActiveIDOffset + 4  // uint16
	poolStatusOffset      = poolBinStepOffset + 2   // uint8
	poolTokenXMintOffset  = poolStatusOffset + 1 + 5 // 32 bytes, 5 bytes padding to align
	poolTokenYMintOffset  = poolTokenXMintOffset + 32
	poolReserveXOffset    = poolTokenYMintOffset + 32
	poolReserveYOffset    = poolReserveXOffset + 32
	poolTokenXFlagOffset  = poolReserveYOffset + 32
	poolTokenYFlagOffset  = poolTokenXFlagOffset + 1

	// PoolInfoMinSize is the minimum buffer length DecodePoolInfo requires.
	PoolInfoMinSize = poolTokenYFlagOffset + 1

	posOwnerOffset      = discriminatorLen
	posPoolOffset       = posOwnerOffset + 32
	posAuxOffset        = posPoolOffset + 32
	posSideOffset       = posAuxOffset + 32
	posMinBinOffset     = posSideOffset + 1 + 3 // 1 byte side, 3 bytes padding
	posMaxBinOffset     = posMinBinOffset + 4
	posInitAmountOffset = posMaxBinOffset + 4
	posHarvestedOffset  = posInitAmountOffset + 8
	posCreatedAtOffset  = posHarvestedOffset + 8

	// PositionMinSize is the minimum buffer length DecodePosition requires.
	PositionMinSize = posCreatedAtOffset + 8
)
