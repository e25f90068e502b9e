/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package hpack

import "errors"

var errBadRepresentation = errors.New("hpack: unrecognized header representation")

// Encoder serializes header fields into an HPACK block, maintaining its
// own dynamic table across calls within one connection.
type Encoder struct {
	Dyn     *DynamicTable
	Huffman bool
}

func NewEncoder(dynMaxSize int) *Encoder {
	return &Encoder{Dyn: NewDynamicTable(dynMaxSize), Huffman: true}
}

// WriteField appends one header field using a Literal Header Field
// representation, indexed by name where the static table has a match.
// With index=true it uses incremental indexing and inserts the field into
// the dynamic table; with index=false it uses the literal-without-indexing
// form and leaves the dynamic table untouched.
func (e *Encoder) WriteField(dst []byte, f HeaderField, index bool) []byte {
	nameIdx := StaticIndexOfName(f.Name)
	prefixBits := uint8(4)
	flag := byte(0x00)
	if index {
		prefixBits = 6
		flag = 0x40
	}
	dst = EncodeInteger(dst, uint64(nameIdx), prefixBits, flag)
	if nameIdx == 0 {
		dst = EncodeString(dst, f.Name, e.Huffman)
	}
	dst = EncodeString(dst, f.Value, e.Huffman)
	if index {
		e.Dyn.Insert(f)
	}
	return dst
}

// WriteIndexed appends an Indexed Header Field representation for a
// fully-matched static-table entry.
func (e *Encoder) WriteIndexed(dst []byte, wireIndex int) []byte {
	return EncodeInteger(dst, uint64(wireIndex), 7, 0x80)
}

// Decoder parses an HPACK block into header fields, maintaining its own
// dynamic table across calls within one connection.
type Decoder struct {
	Dyn *DynamicTable
}

func NewDecoder(dynMaxSize int) *Decoder {
	return &Decoder{Dyn: NewDynamicTable(dynMaxSize)}
}

// DecodeBlock parses every representation in block and returns the
// ordered header fields (spec §4.4: indexed, literal-incremental,
// literal-without-indexing, literal-never-indexed, dynamic-table-size
// update).
func (d *Decoder) DecodeBlock(block []byte) ([]HeaderField, error) {
	var out []HeaderField
	p := block
	for len(p) > 0 {
		b := p[0]
		switch {
		case b&0x80 != 0: // Indexed Header Field
			idx, n, err := DecodeInteger(p, 7)
			if err != nil {
				return nil, err
			}
			f, ok := Resolve(d.Dyn, int(idx))
			if !ok {
				return nil, errBadRepresentation
			}
			out = append(out, f)
			p = p[n:]

		case b&0xc0 == 0x40: // Literal with Incremental Indexing
			f, n, err := decodeLiteral(d.Dyn, p, 6)
			if err != nil {
				return nil, err
			}
			d.Dyn.Insert(f)
			out = append(out, f)
			p = p[n:]

		case b&0xf0 == 0x00: // Literal without Indexing
			f, n, err := decodeLiteral(d.Dyn, p, 4)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			p = p[n:]

		case b&0xf0 == 0x10: // Literal Never Indexed
			f, n, err := decodeLiteral(d.Dyn, p, 4)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
			p = p[n:]

		case b&0xe0 == 0x20: // Dynamic Table Size Update
			n, consumed, err := DecodeInteger(p, 5)
			if err != nil {
				return nil, err
			}
			d.Dyn.SetMaxSize(int(n))
			p = p[consumed:]

		default:
			return nil, errBadRepresentation
		}
	}
	return out, nil
}

func decodeLiteral(dyn *DynamicTable, p []byte, prefixBits uint8) (HeaderField, int, error) {
	nameIdx, n, err := DecodeInteger(p, prefixBits)
	if err != nil {
		return HeaderField{}, 0, err
	}
	off := n
	var name string
	if nameIdx == 0 {
		s, sn, err := DecodeString(p[off:])
		if err != nil {
			return HeaderField{}, 0, err
		}
		name = s
		off += sn
	} else {
		f, ok := Resolve(dyn, int(nameIdx))
		if !ok {
			return HeaderField{}, 0, errBadRepresentation
		}
		name = f.Name
	}
	value, vn, err := DecodeString(p[off:])
	if err != nil {
		return HeaderField{}, 0, err
	}
	off += vn
	return HeaderField{Name: name, Value: value}, off, nil
}
