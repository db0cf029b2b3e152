package metatx

// Options configures how a call is executed. The relay path is used when both
// Relay and ForwarderAddress are set.
type Options struct {
	// ForwarderAddress is the trusted forwarder the relayer submits to.
	ForwarderAddress string

	// Relay dispatches signed requests (optional; enables the relay path).
	Relay RelayTransport

	// NonceSource reads forwarder nonces (required for the relay path).
	NonceSource NonceSource

	// PermitSigner signs ERC-2612 permits for relayed approve calls (optional).
	PermitSigner PermitSigner

	// GasOracle supplies gas prices for the standard path (optional).
	GasOracle GasPriceOracle
}

// ExecutionContext bundles the signer, provider and options for a call. It is
// immutable: the With* methods return modified copies.
type ExecutionContext struct {
	signer   Signer
	provider ChainProvider
	options  Options
}

// ContextOption configures an ExecutionContext.
type ContextOption func(*ExecutionContext)

// WithForwarder sets the forwarder address.
func WithForwarder(address string) ContextOption {
	return func(c *ExecutionContext) {
		c.options.ForwarderAddress = address
	}
}

// WithRelay sets the relay transport.
func WithRelay(relay RelayTransport) ContextOption {
	return func(c *ExecutionContext) {
		c.options.Relay = relay
	}
}

// WithNonceSource sets the forwarder nonce source.
func WithNonceSource(source NonceSource) ContextOption {
	return func(c *ExecutionContext) {
		c.options.NonceSource = source
	}
}

// WithPermitSigner sets the ERC-2612 permit signer.
func WithPermitSigner(signer PermitSigner) ContextOption {
	return func(c *ExecutionContext) {
		c.options.PermitSigner = signer
	}
}

// WithGasOracle sets the gas price oracle for the standard path.
func WithGasOracle(oracle GasPriceOracle) ContextOption {
	return func(c *ExecutionContext) {
		c.options.GasOracle = oracle
	}
}

// NewExecutionContext creates an execution context. signer and provider may be
// nil; operations that need them fail with an invariant error.
func NewExecutionContext(signer Signer, provider ChainProvider, opts ...ContextOption) ExecutionContext {
	c := ExecutionContext{
		signer:   signer,
		provider: provider,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Signer returns the attached signing identity.
func (c ExecutionContext) Signer() Signer { return c.signer }

// Provider returns the attached chain provider.
func (c ExecutionContext) Provider() ChainProvider { return c.provider }

// Options returns a copy of the options.
func (c ExecutionContext) Options() Options { return c.options }

// WithSigner returns a copy bound to a different signer.
func (c ExecutionContext) WithSigner(signer Signer) ExecutionContext {
	c.signer = signer
	return c
}

// WithProvider returns a copy bound to a different provider.
func (c ExecutionContext) WithProvider(provider ChainProvider) ExecutionContext {
	c.provider = provider
	return c
}

// With returns a copy with the options applied.
func (c ExecutionContext) With(opts ...ContextOption) ExecutionContext {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Gasless reports whether calls in this context take the relay path.
func (c ExecutionContext) Gasless() bool {
	return c.options.Relay != nil && c.options.ForwarderAddress != ""
}
