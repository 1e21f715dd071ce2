package covenants

import "github.com/tari-project/tari-sub025/core"

// FieldID names one projectable field of a TransactionOutput, used by
// fields_preserved/field_eq/fields_hashed_eq.
type FieldID uint8

const (
	FieldCommitment FieldID = iota
	FieldFeatures
	FieldScript
	FieldCovenant
	FieldSenderOffsetPublicKey
	FieldEncryptedData
	FieldMinimumValuePromise
)

// FieldSet is a bitmap over FieldID, one bit per field.
type FieldSet uint16

func (s FieldSet) Has(f FieldID) bool {
	return s&(1<<uint(f)) != 0
}

func NewFieldSet(fields ...FieldID) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s |= 1 << uint(f)
	}
	return s
}

// fieldBytes returns the canonical byte projection of field f on out, the
// same bytes fields_preserved/field_eq/fields_hashed_eq compare.
func fieldBytes(f FieldID, out core.TransactionOutput) ([]byte, error) {
	switch f {
	case FieldCommitment:
		return out.Commitment[:], nil
	case FieldFeatures:
		b := make([]byte, 2)
		b[0] = byte(out.Features)
		b[1] = byte(out.Features >> 8)
		return b, nil
	case FieldScript:
		return out.Script, nil
	case FieldCovenant:
		return out.Covenant, nil
	case FieldSenderOffsetPublicKey:
		return out.SenderOffsetPublicKey[:], nil
	case FieldEncryptedData:
		return out.EncryptedData, nil
	case FieldMinimumValuePromise:
		b := make([]byte, 8)
		v := out.MinimumValuePromise
		for i := 0; i < 8; i++ {
			b[i] = byte(v >> (8 * (7 - i)))
		}
		return b, nil
	default:
		return nil, covErr(ErrInvalidFieldSet, "unknown field id")
	}
}
