package covenants

import "github.com/tari-project/tari-sub025/core"

// Evaluate decodes program (an output's covenant bytes) and applies it
// to candidateOutputs, returning the subset the covenant permits. An
// empty program (len(program) == 0) is treated as identity: no covenant
// means no constraint.
func Evaluate(program []byte, ctx Context, candidateOutputs []core.TransactionOutput) ([]core.TransactionOutput, error) {
	if len(program) == 0 {
		return candidateOutputs, nil
	}
	filter, err := Decode(program)
	if err != nil {
		return nil, err
	}
	return filter.Apply(ctx, candidateOutputs), nil
}
