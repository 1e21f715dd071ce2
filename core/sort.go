package core

import "sort"

// SortBody sorts inputs by referenced output hash, outputs by commitment,
// and kernels by (features, fee, lock_height, excess), the canonical body
// ordering.
func SortBody(body *AggregateBody) {
	sort.Slice(body.Inputs, func(i, j int) bool {
		return body.Inputs[i].OutputHash.Less(body.Inputs[j].OutputHash)
	})
	sort.Slice(body.Outputs, func(i, j int) bool {
		return body.Outputs[i].Commitment.Less(body.Outputs[j].Commitment)
	})
	sort.Slice(body.Kernels, func(i, j int) bool {
		return kernelLess(body.Kernels[i], body.Kernels[j])
	})
}

func kernelLess(a, b TransactionKernel) bool {
	if a.Features != b.Features {
		return a.Features < b.Features
	}
	if a.Fee != b.Fee {
		return a.Fee < b.Fee
	}
	if a.LockHeight != b.LockHeight {
		return a.LockHeight < b.LockHeight
	}
	return a.Excess.Less(b.Excess)
}

// IsSortedInputs reports whether inputs is strictly sorted by referenced
// output hash with no duplicates.
func IsSortedInputs(inputs []TransactionInput) bool {
	for i := 1; i < len(inputs); i++ {
		if !inputs[i-1].OutputHash.Less(inputs[i].OutputHash) {
			return false
		}
	}
	return true
}

// IsSortedOutputs reports whether outputs is strictly sorted by
// commitment with no duplicates.
func IsSortedOutputs(outputs []TransactionOutput) bool {
	for i := 1; i < len(outputs); i++ {
		if !outputs[i-1].Commitment.Less(outputs[i].Commitment) {
			return false
		}
	}
	return true
}

// IsSortedKernels reports whether kernels is strictly sorted by
// (features, fee, lock_height, excess) with no duplicates.
func IsSortedKernels(kernels []TransactionKernel) bool {
	for i := 1; i < len(kernels); i++ {
		if !kernelLess(kernels[i-1], kernels[i]) {
			return false
		}
	}
	return true
}

// IsSortedBody reports whether body already satisfies the ordering (and
// no-duplicates) invariant, without mutating it. The internal block
// validator (validation/) runs the three per-list checks it combines
// separately, so each list reports its own error kind; SortBody is only
// used by block-construction callers, kept here as the dual to
// IsSortedBody so both directions stay in one place.
func IsSortedBody(body *AggregateBody) bool {
	return IsSortedInputs(body.Inputs) && IsSortedOutputs(body.Outputs) && IsSortedKernels(body.Kernels)
}
