package gasprice

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	metatx "github.com/dropforge/metatx/go"
)

// Speed selects a gas station tier.
type Speed string

const (
	SpeedSafeLow  Speed = "safeLow"
	SpeedStandard Speed = "standard"
	SpeedFast     Speed = "fast"
	SpeedFastest  Speed = "fastest"
)

const (
	// DefaultMaxGasPriceGwei caps station prices.
	DefaultMaxGasPriceGwei = 300

	// DefaultSpeed is used when no speed is configured.
	DefaultSpeed = SpeedFastest

	defaultTimeout = 10 * time.Second
)

// DefaultStationURLs are the Polygon gas stations keyed by chain id.
var DefaultStationURLs = map[int64]string{
	137:   "https://gasstation.polygon.technology/v2",
	80002: "https://gasstation.polygon.technology/amoy",
	80001: "https://gasstation-testnet.polygon.technology/v2",
}

// ParseSpeed validates a configured speed name.
func ParseSpeed(s string) (Speed, error) {
	switch Speed(s) {
	case SpeedSafeLow, SpeedStandard, SpeedFast, SpeedFastest:
		return Speed(s), nil
	case "":
		return DefaultSpeed, nil
	}
	return "", fmt.Errorf("unknown gas speed %q", s)
}

// StationConfig configures a GasStationOracle.
type StationConfig struct {
	// URLs maps chain ids to gas station endpoints (defaults to DefaultStationURLs)
	URLs map[int64]string

	// Speed tier to read (defaults to fastest)
	Speed Speed

	// MaxGasPriceGwei caps the returned price; zero disables the cap
	MaxGasPriceGwei float64

	// HTTPClient is the HTTP client to use (optional)
	HTTPClient *http.Client

	// Logger (optional)
	Logger *zerolog.Logger
}

// GasStationOracle reads gas prices from a Polygon-style gas station and
// implements metatx.GasPriceOracle. Chains without a station get no override.
type GasStationOracle struct {
	urls       map[int64]string
	speed      Speed
	maxGwei    float64
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewGasStationOracle creates an oracle from config.
func NewGasStationOracle(config StationConfig) *GasStationOracle {
	urls := config.URLs
	if urls == nil {
		urls = DefaultStationURLs
	}
	speed := config.Speed
	if speed == "" {
		speed = DefaultSpeed
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := zerolog.Nop()
	if config.Logger != nil {
		logger = *config.Logger
	}

	return &GasStationOracle{
		urls:       urls,
		speed:      speed,
		maxGwei:    config.MaxGasPriceGwei,
		httpClient: httpClient,
		logger:     logger.With().Str("component", "gas_station_oracle").Logger(),
	}
}

// GasPrice returns the station price for chainID in wei, or nil when the chain
// has no station.
func (o *GasStationOracle) GasPrice(ctx context.Context, chainID *big.Int) (*big.Int, error) {
	if chainID == nil || !chainID.IsInt64() {
		return nil, nil
	}
	url, ok := o.urls[chainID.Int64()]
	if !ok {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create gas station request: %w", err)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gas station request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read gas station response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gas station returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	gwei, err := parseStationPrice(body, o.speed)
	if err != nil {
		return nil, err
	}

	capped := false
	if o.maxGwei > 0 && gwei > o.maxGwei {
		gwei = o.maxGwei
		capped = true
	}

	wei := GweiToWei(gwei)

	o.logger.Debug().
		Str("chain_id", chainID.String()).
		Str("speed", string(o.speed)).
		Float64("gas_price_gwei", gwei).
		Bool("capped", capped).
		Msg("fetched gas station price")

	return wei, nil
}

// parseStationPrice reads the speed tier from either the v2 station format
// ({"fast": {"maxFee": ...}}) or the legacy one ({"fast": 42.1}).
func parseStationPrice(body []byte, speed Speed) (float64, error) {
	var tiers map[string]json.RawMessage
	if err := json.Unmarshal(body, &tiers); err != nil {
		return 0, fmt.Errorf("malformed gas station response: %w", err)
	}

	raw, ok := tiers[string(speed)]
	if !ok && speed == SpeedFastest {
		// v2 stations stop at "fast"
		raw, ok = tiers[string(SpeedFast)]
	}
	if !ok {
		return 0, fmt.Errorf("gas station response has no %q tier", speed)
	}

	var legacy float64
	if err := json.Unmarshal(raw, &legacy); err == nil {
		return legacy, nil
	}

	var tier struct {
		MaxFee         *float64 `json:"maxFee"`
		MaxPriorityFee *float64 `json:"maxPriorityFee"`
	}
	if err := json.Unmarshal(raw, &tier); err != nil {
		return 0, fmt.Errorf("malformed %q tier: %w", speed, err)
	}
	if tier.MaxFee == nil {
		return 0, fmt.Errorf("%q tier has no maxFee", speed)
	}
	return *tier.MaxFee, nil
}

// GweiToWei converts a gwei amount to wei, truncating sub-wei fractions.
func GweiToWei(gwei float64) *big.Int {
	f := new(big.Float).SetPrec(256).SetFloat64(gwei)
	f.Mul(f, big.NewFloat(1e9))
	wei, _ := f.Int(nil)
	return wei
}

// WeiToGwei formats wei as gwei for logs and CLI output.
func WeiToGwei(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	f := new(big.Float).SetPrec(256).SetInt(wei)
	f.Quo(f, big.NewFloat(1e9))
	return f.Text('f', 9)
}

var _ metatx.GasPriceOracle = (*GasStationOracle)(nil)
