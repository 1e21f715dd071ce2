package covenants

import "encoding/binary"

// Opcode is the single-byte filter tag leading each encoded filter:
// one opcode byte followed by arity-specific arguments. Values must
// stay stable once a chain is live; only append.
type Opcode byte

const (
	OpIdentity Opcode = iota
	OpAnd
	OpOr
	OpXor
	OpNot
	OpOutputHashEq
	OpFieldsPreserved
	OpFieldEq
	OpFieldsHashedEq
	OpAbsoluteHeight
)

// cursor is a minimal byte reader, the same shape core/wire.go's cursor
// uses for block decoding, kept local to this package since covenant
// byte-code has its own small grammar: arguments are fixed-width
// big-endian integers (2-byte field_eq value lengths and field bitmaps,
// 8-byte heights), not varints, and nested filters follow their parent
// opcode directly with no length prefix. There is no CompactSize
// non-minimality rule — covenants are produced by wallets, not miners,
// so there is no malleability concern to defend against here.
type cursor struct {
	b   []byte
	pos int
}

func (c *cursor) readByte() (byte, error) {
	if c.pos >= len(c.b) {
		return 0, covErr(ErrTruncatedByteCode, "expected opcode byte")
	}
	v := c.b[c.pos]
	c.pos++
	return v, nil
}

func (c *cursor) readUint64() (uint64, error) {
	if c.pos+8 > len(c.b) {
		return 0, covErr(ErrTruncatedByteCode, "expected 8-byte argument")
	}
	v := binary.BigEndian.Uint64(c.b[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

func (c *cursor) readUint16() (uint16, error) {
	if c.pos+2 > len(c.b) {
		return 0, covErr(ErrTruncatedByteCode, "expected 2-byte argument")
	}
	v := binary.BigEndian.Uint16(c.b[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

func (c *cursor) readHash() ([32]byte, error) {
	var h [32]byte
	if c.pos+32 > len(c.b) {
		return h, covErr(ErrTruncatedByteCode, "expected 32-byte hash argument")
	}
	copy(h[:], c.b[c.pos:c.pos+32])
	c.pos += 32
	return h, nil
}

func (c *cursor) atEnd() bool { return c.pos >= len(c.b) }

// Decode parses a full covenant byte-code program into a Filter tree.
func Decode(b []byte) (Filter, error) {
	c := &cursor{b: b}
	f, err := decodeOne(c)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func decodeOne(c *cursor) (Filter, error) {
	opByte, err := c.readByte()
	if err != nil {
		return nil, err
	}

	switch Opcode(opByte) {
	case OpIdentity:
		return identityFilter{}, nil

	case OpAnd, OpOr, OpXor:
		left, err := decodeOne(c)
		if err != nil {
			return nil, err
		}
		right, err := decodeOne(c)
		if err != nil {
			return nil, err
		}
		switch Opcode(opByte) {
		case OpAnd:
			return andFilter{left, right}, nil
		case OpOr:
			return orFilter{left, right}, nil
		default:
			return xorFilter{left, right}, nil
		}

	case OpNot:
		inner, err := decodeOne(c)
		if err != nil {
			return nil, err
		}
		return notFilter{inner}, nil

	case OpOutputHashEq:
		h, err := c.readHash()
		if err != nil {
			return nil, err
		}
		return outputHashEqFilter{hash: h}, nil

	case OpFieldsPreserved:
		fs, err := c.readUint16()
		if err != nil {
			return nil, err
		}
		return fieldsPreservedFilter{fields: FieldSet(fs)}, nil

	case OpFieldEq:
		fieldByte, err := c.readByte()
		if err != nil {
			return nil, err
		}
		length, err := c.readUint16()
		if err != nil {
			return nil, err
		}
		if c.pos+int(length) > len(c.b) {
			return nil, covErr(ErrTruncatedByteCode, "field_eq value overruns byte-code")
		}
		value := append([]byte(nil), c.b[c.pos:c.pos+int(length)]...)
		c.pos += int(length)
		return fieldEqFilter{field: FieldID(fieldByte), value: value}, nil

	case OpFieldsHashedEq:
		fs, err := c.readUint16()
		if err != nil {
			return nil, err
		}
		h, err := c.readHash()
		if err != nil {
			return nil, err
		}
		return fieldsHashedEqFilter{fields: FieldSet(fs), hash: h}, nil

	case OpAbsoluteHeight:
		h, err := c.readUint64()
		if err != nil {
			return nil, err
		}
		return absoluteHeightFilter{height: h}, nil

	default:
		return nil, covErr(ErrUnknownFilterByteCode, "unrecognised covenant opcode")
	}
}
