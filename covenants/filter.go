// Package covenants implements the stack-based covenant filter VM:
// each output carries a byte-coded program that constrains which
// outputs may be created when that output is spent. Programs are
// decoded up front and rejected structurally; evaluation itself can
// then never fail.
package covenants

import (
	"bytes"

	"github.com/tari-project/tari-sub025/core"
)

// Context is the read-only evaluation context a Filter runs against:
// the current block height (for absolute_height) and the output being
// spent (for fields_preserved, whose comparisons are against it).
type Context struct {
	BlockHeight uint64
	SpentOutput core.TransactionOutput
}

// Filter narrows a candidate output set. Apply never errors: a
// structurally invalid covenant is rejected at decode time (Decode
// returns an error for UnknownFilterByteCode/truncation), so by the time
// a Filter tree exists it is always safe to evaluate.
type Filter interface {
	Apply(ctx Context, outputs []core.TransactionOutput) []core.TransactionOutput
}

type identityFilter struct{}

func (identityFilter) Apply(_ Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return outputs
}

type andFilter struct{ left, right Filter }

func (f andFilter) Apply(ctx Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return intersect(f.left.Apply(ctx, outputs), f.right.Apply(ctx, outputs))
}

type orFilter struct{ left, right Filter }

func (f orFilter) Apply(ctx Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return union(f.left.Apply(ctx, outputs), f.right.Apply(ctx, outputs))
}

type xorFilter struct{ left, right Filter }

func (f xorFilter) Apply(ctx Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	l := f.left.Apply(ctx, outputs)
	r := f.right.Apply(ctx, outputs)
	inBoth := intersect(l, r)
	return subtract(union(l, r), inBoth)
}

type notFilter struct{ inner Filter }

func (f notFilter) Apply(ctx Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return subtract(outputs, f.inner.Apply(ctx, outputs))
}

type outputHashEqFilter struct{ hash [32]byte }

func (f outputHashEqFilter) Apply(_ Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return filterKeep(outputs, func(o core.TransactionOutput) bool {
		return outputHash(o) == f.hash
	})
}

// fieldsPreservedFilter keeps outputs whose named fields equal the
// corresponding field on ctx.SpentOutput.
type fieldsPreservedFilter struct{ fields FieldSet }

func (f fieldsPreservedFilter) Apply(ctx Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return filterKeep(outputs, func(o core.TransactionOutput) bool {
		return allFieldsEqual(f.fields, o, ctx.SpentOutput)
	})
}

type fieldEqFilter struct {
	field FieldID
	value []byte
}

func (f fieldEqFilter) Apply(_ Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return filterKeep(outputs, func(o core.TransactionOutput) bool {
		b, err := fieldBytes(f.field, o)
		return err == nil && bytes.Equal(b, f.value)
	})
}

type fieldsHashedEqFilter struct {
	fields FieldSet
	hash   [32]byte
}

func (f fieldsHashedEqFilter) Apply(_ Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	return filterKeep(outputs, func(o core.TransactionOutput) bool {
		return hashFields(f.fields, o) == f.hash
	})
}

// absoluteHeightFilter clears the whole output set when the current
// block height has not yet reached the required height, per
// absolute_height.rs's filter(): "if block_height < self.height ...
// output_set.clear()". Ported exactly, including the detail that it
// blocks ALL outputs (not just some), and that reaching or exceeding the
// height passes every output through unfiltered.
type absoluteHeightFilter struct{ height uint64 }

func (f absoluteHeightFilter) Apply(ctx Context, outputs []core.TransactionOutput) []core.TransactionOutput {
	if ctx.BlockHeight < f.height {
		return nil
	}
	return outputs
}

func outputHash(o core.TransactionOutput) [32]byte {
	enc := core.EncodeOutput(&o)
	return core.HashBytes(enc)
}

func allFieldsEqual(fields FieldSet, a, b core.TransactionOutput) bool {
	for f := FieldID(0); f <= FieldMinimumValuePromise; f++ {
		if !fields.Has(f) {
			continue
		}
		ab, errA := fieldBytes(f, a)
		bb, errB := fieldBytes(f, b)
		if errA != nil || errB != nil || !bytes.Equal(ab, bb) {
			return false
		}
	}
	return true
}

func hashFields(fields FieldSet, o core.TransactionOutput) [32]byte {
	var buf []byte
	for f := FieldID(0); f <= FieldMinimumValuePromise; f++ {
		if !fields.Has(f) {
			continue
		}
		b, err := fieldBytes(f, o)
		if err != nil {
			continue
		}
		buf = append(buf, b...)
	}
	return core.HashBytes(buf)
}

func filterKeep(outputs []core.TransactionOutput, keep func(core.TransactionOutput) bool) []core.TransactionOutput {
	out := make([]core.TransactionOutput, 0, len(outputs))
	for _, o := range outputs {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func intersect(a, b []core.TransactionOutput) []core.TransactionOutput {
	set := make(map[[32]byte]bool, len(b))
	for _, o := range b {
		set[outputHash(o)] = true
	}
	return filterKeep(a, func(o core.TransactionOutput) bool { return set[outputHash(o)] })
}

func union(a, b []core.TransactionOutput) []core.TransactionOutput {
	seen := make(map[[32]byte]bool, len(a)+len(b))
	out := make([]core.TransactionOutput, 0, len(a)+len(b))
	for _, o := range append(append([]core.TransactionOutput(nil), a...), b...) {
		h := outputHash(o)
		if !seen[h] {
			seen[h] = true
			out = append(out, o)
		}
	}
	return out
}

func subtract(a, b []core.TransactionOutput) []core.TransactionOutput {
	set := make(map[[32]byte]bool, len(b))
	for _, o := range b {
		set[outputHash(o)] = true
	}
	return filterKeep(a, func(o core.TransactionOutput) bool { return !set[outputHash(o)] })
}
