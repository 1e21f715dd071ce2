package validation

// Validator is the thin tag shared by the concrete validator variants
// (HeaderValidator, InternalBlockValidator, ChainContextValidator, plus
// ChainBalanceValidator invoked separately at horizon-sync completion),
// composed explicitly by chainsync/ rather than through embedding. Each
// concrete validator's Validate method takes the specific arguments
// that layer needs, so composition happens at the call site, not by
// forcing every validator through one uniform signature.
type Validator interface {
	Name() string
}
