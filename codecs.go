package cowtree

// BytesCodec is a Codec for []byte keys or values, length-prefixed with a
// varint the same way the page's own binary format prefixes its fields.
type BytesCodec struct{}

func (BytesCodec) MemoryOf(v interface{}) int {
	return len(v.([]byte)) + 8
}

func (BytesCodec) Write(buf *WriteBuffer, v interface{}) error {
	b := v.([]byte)
	buf.PutVarUint(uint64(len(b)))
	buf.PutBytes(b)
	return nil
}

func (BytesCodec) Read(buf *ReadBuffer) (interface{}, error) {
	n := int(buf.VarUint())
	return append([]byte{}, buf.Bytes(n)...), nil
}

// StringCodec is a Codec for string keys or values.
type StringCodec struct{}

func (StringCodec) MemoryOf(v interface{}) int {
	return len(v.(string)) + 8
}

func (StringCodec) Write(buf *WriteBuffer, v interface{}) error {
	s := v.(string)
	buf.PutVarUint(uint64(len(s)))
	buf.PutBytes([]byte(s))
	return nil
}

func (StringCodec) Read(buf *ReadBuffer) (interface{}, error) {
	n := int(buf.VarUint())
	return string(buf.Bytes(n)), nil
}

// Int64Codec is a Codec for int64 keys or values, fixed-width.
type Int64Codec struct{}

func (Int64Codec) MemoryOf(interface{}) int { return 16 }

func (Int64Codec) Write(buf *WriteBuffer, v interface{}) error {
	buf.PutInt64(v.(int64))
	return nil
}

func (Int64Codec) Read(buf *ReadBuffer) (interface{}, error) {
	return buf.Int64(), nil
}

// CompareBytes is the default Comparator for []byte keys.
func CompareBytes(a, b interface{}) int {
	ab, bb := a.([]byte), b.([]byte)
	n := len(ab)
	if len(bb) < n {
		n = len(bb)
	}
	for i := 0; i < n; i++ {
		if ab[i] != bb[i] {
			if ab[i] < bb[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ab) < len(bb):
		return -1
	case len(ab) > len(bb):
		return 1
	default:
		return 0
	}
}

// CompareInt64 is the default Comparator for int64 keys.
func CompareInt64(a, b interface{}) int {
	av, bv := a.(int64), b.(int64)
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}
