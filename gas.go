package metatx

const (
	// GasEstimateFloor is the estimate below which a provider is assumed to
	// have under-estimated (seen with WalletConnect on Polygon at ~21.7k).
	GasEstimateFloor uint64 = 25000

	// FallbackGasLimit is forwarded when the estimate is below the floor.
	FallbackGasLimit uint64 = 500000

	// GasLimitMultiplier is applied to sane estimates.
	GasLimitMultiplier uint64 = 2
)

// ForwardedGasLimit returns the gas limit to put in a forward request for a
// raw estimate.
func ForwardedGasLimit(estimate uint64) uint64 {
	if estimate < GasEstimateFloor {
		return FallbackGasLimit
	}
	return estimate * GasLimitMultiplier
}
