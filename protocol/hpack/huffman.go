/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package hpack implements RFC 7541 header compression: the integer and
// string codecs, the Huffman code table, and the static/dynamic header
// tables, all consumed by protocol/h2's frame layer.
package hpack

// huffmanSym is one entry of the canonical static Huffman code table (RFC
// 7541 Appendix B): code, left-justified within nbits.
type huffmanSym struct {
	code  uint32
	nbits uint8
}

// huffmanTable holds the 256 byte-value codes plus the EOS sentinel at
// index 256, the same code/length pairs as RFC 7541 Appendix B.
var huffmanTable = [257]huffmanSym{
	{0x1ff8, 13}, {0x7fffd8, 23}, {0xfffffe2, 28}, {0xfffffe3, 28}, {0xfffffe4, 28}, {0xfffffe5, 28}, {0xfffffe6, 28}, {0xfffffe7, 28},
	{0xfffffe8, 28}, {0xffffea, 24}, {0x3ffffffc, 30}, {0xfffffe9, 28}, {0xfffffea, 28}, {0x3ffffffd, 30}, {0xfffffeb, 28}, {0xfffffec, 28},
	{0xfffffed, 28}, {0xfffffee, 28}, {0xfffffef, 28}, {0xffffff0, 28}, {0xffffff1, 28}, {0xffffff2, 28}, {0x3ffffffe, 30}, {0xffffff3, 28},
	{0xffffff4, 28}, {0xffffff5, 28}, {0xffffff6, 28}, {0xffffff7, 28}, {0xffffff8, 28}, {0xffffff9, 28}, {0xffffffa, 28}, {0xffffffb, 28},
	{0x14, 6}, {0x3f8, 10}, {0x3f9, 10}, {0xffa, 12}, {0x1ff9, 13}, {0x15, 6}, {0xf8, 8}, {0x7fa, 11},
	{0x3fa, 10}, {0x3fb, 10}, {0xf9, 8}, {0x7fb, 11}, {0xfa, 8}, {0x16, 6}, {0x17, 6}, {0x18, 6},
	{0x0, 5}, {0x1, 5}, {0x2, 5}, {0x19, 6}, {0x1a, 6}, {0x1b, 6}, {0x1c, 6}, {0x1d, 6},
	{0x1e, 6}, {0x1f, 6}, {0x5c, 7}, {0xfb, 8}, {0x7ffc, 15}, {0x20, 6}, {0xffb, 12}, {0x3fc, 10},
	{0x1ffa, 13}, {0x21, 6}, {0x5d, 7}, {0x5e, 7}, {0x5f, 7}, {0x60, 7}, {0x61, 7}, {0x62, 7},
	{0x63, 7}, {0x64, 7}, {0x65, 7}, {0x66, 7}, {0x67, 7}, {0x68, 7}, {0x69, 7}, {0x6a, 7},
	{0x6b, 7}, {0x6c, 7}, {0x6d, 7}, {0x6e, 7}, {0x6f, 7}, {0x70, 7}, {0x71, 7}, {0x72, 7},
	{0xfc, 8}, {0x73, 7}, {0xfd, 8}, {0x1ffb, 13}, {0x7fff0, 19}, {0x1ffc, 13}, {0x3ffc, 14}, {0x22, 6},
	{0x7ffd, 15}, {0x3, 5}, {0x23, 6}, {0x4, 5}, {0x24, 6}, {0x5, 5}, {0x25, 6}, {0x26, 6},
	{0x27, 6}, {0x6, 5}, {0x74, 7}, {0x75, 7}, {0x28, 6}, {0x29, 6}, {0x2a, 6}, {0x7, 5},
	{0x2b, 6}, {0x76, 7}, {0x2c, 6}, {0x8, 5}, {0x9, 5}, {0x2d, 6}, {0x77, 7}, {0x78, 7},
	{0x79, 7}, {0x7a, 7}, {0x7b, 7}, {0x7ffe, 15}, {0x7fc, 11}, {0x3ffd, 14}, {0x1ffd, 13}, {0xffffffc, 28},
	{0xfffe6, 20}, {0x3fffd2, 22}, {0xfffe7, 20}, {0xfffe8, 20}, {0x3fffd3, 22}, {0x3fffd4, 22}, {0x3fffd5, 22}, {0x7fffd9, 23},
	{0x3fffd6, 22}, {0x7fffda, 23}, {0x7fffdb, 23}, {0x7fffdc, 23}, {0x7fffdd, 23}, {0x7fffde, 23}, {0xffffeb, 24}, {0x7fffdf, 23},
	{0xffffec, 24}, {0xffffed, 24}, {0x3fffd7, 22}, {0x7fffe0, 23}, {0xffffee, 24}, {0x7fffe1, 23}, {0x7fffe2, 23}, {0x7fffe3, 23},
	{0x7fffe4, 23}, {0x1fffdc, 21}, {0x3fffd8, 22}, {0x7fffe5, 23}, {0x3fffd9, 22}, {0x7fffe6, 23}, {0x7fffe7, 23}, {0xffffef, 24},
	{0x3fffda, 22}, {0x1fffdd, 21}, {0xfffee, 20}, {0xfffef, 20}, {0x1fffde, 21}, {0x3fffdb, 22}, {0x3fffdc, 22}, {0x7fffe8, 23},
	{0x7fffe9, 23}, {0x1fffdf, 21}, {0x3fffe0, 22}, {0x1fffe0, 21}, {0x1fffe1, 21}, {0x3fffe1, 22}, {0x3fffe2, 22}, {0x3fffe3, 22},
	{0x3fffe4, 22}, {0x7fffea, 23}, {0x7fffeb, 23}, {0x1fffe2, 21}, {0x1fffe3, 21}, {0x3fffe5, 22}, {0x3fffe6, 22}, {0x7fffec, 23},
	{0x7fffed, 23}, {0x7fffee, 23}, {0x7fffef, 23}, {0xfffec, 20}, {0xfffff0, 24}, {0xfffed, 20}, {0x1fffe4, 21}, {0x1fffe5, 21},
	{0x3fffe7, 22}, {0x3fffe8, 22}, {0x1fffe6, 21}, {0x3fffe9, 22}, {0x1fffe7, 21}, {0x3fffea, 22}, {0x3fffeb, 22}, {0x7ffff0, 23},
	{0x3fffec, 22}, {0x3fffed, 22}, {0x7ffff1, 23}, {0x3fffee, 22}, {0x7ffff2, 23}, {0x7ffff3, 23}, {0x7ffff4, 23}, {0x7ffff5, 23},
	{0x7ffff6, 23}, {0x7ffff7, 23}, {0x7ffff8, 23}, {0x7ffff9, 23}, {0x7ffffa, 23}, {0x7ffffb, 23}, {0xfffff1, 24}, {0xfffff2, 24},
	{0xfffff3, 24}, {0xfffff4, 24}, {0xfffff5, 24}, {0xfffff6, 24}, {0xfffff7, 24}, {0xfffff8, 24}, {0xfffff9, 24}, {0xfffffa, 24},
	{0xfffffb, 24}, {0xfffffc, 24}, {0xfffffd, 24}, {0xfffffe, 24}, {0xffffff, 24},
	// EOS (symbol 256), RFC 7541 Appendix B final entry.
	{0x3fffffff, 30},
}

type huffmanNode struct {
	sym         int32
	left, right int32
}

var huffmanTree = buildHuffmanTree()

func buildHuffmanTree() []huffmanNode {
	nodes := make([]huffmanNode, 1, 1024)
	nodes[0] = huffmanNode{sym: -1, left: -1, right: -1}
	for s := 0; s < 256; s++ {
		code, n := huffmanTable[s].code, huffmanTable[s].nbits
		idx := int32(0)
		for i := int(n) - 1; i >= 0; i-- {
			bit := (code >> uint(i)) & 1
			var next *int32
			if bit == 1 {
				next = &nodes[idx].right
			} else {
				next = &nodes[idx].left
			}
			if *next == -1 {
				nodes = append(nodes, huffmanNode{sym: -1, left: -1, right: -1})
				*next = int32(len(nodes) - 1)
			}
			idx = *next
		}
		nodes[idx].sym = int32(s)
	}
	return nodes
}

// huffmanEncode appends the Huffman encoding of s to dst, padding the
// final byte with one-bits (the EOS prefix) as RFC 7541 §5.2 requires.
func huffmanEncode(dst []byte, s string) []byte {
	var acc uint64
	var nbits uint
	for i := 0; i < len(s); i++ {
		sym := huffmanTable[s[i]]
		acc = (acc << uint(sym.nbits)) | uint64(sym.code)
		nbits += uint(sym.nbits)
		for nbits >= 8 {
			shift := nbits - 8
			dst = append(dst, byte(acc>>shift))
			nbits -= 8
			acc &= (1 << nbits) - 1
		}
	}
	if nbits > 0 {
		b := byte(acc<<(8-nbits)) | (1<<(8-nbits) - 1)
		dst = append(dst, b)
	}
	return dst
}

// huffmanEncodedLen reports the byte length huffmanEncode would produce,
// without allocating, so callers can size the length prefix up front.
func huffmanEncodedLen(s string) int {
	var bits int
	for i := 0; i < len(s); i++ {
		bits += int(huffmanTable[s[i]].nbits)
	}
	return (bits + 7) / 8
}

// huffmanDecode decodes the encoded bytes in p, walking the bit trie.
// Trailing padding bits (all ones, fewer than 8) are silently accepted.
func huffmanDecode(p []byte) (string, error) {
	out := make([]byte, 0, len(p)*2)
	idx := int32(0)
	for bi, byt := range p {
		lastByte := bi == len(p)-1
		for i := 7; i >= 0; i-- {
			bit := (byt >> uint(i)) & 1
			var next int32
			if bit == 1 {
				next = huffmanTree[idx].right
			} else {
				next = huffmanTree[idx].left
			}
			if next == -1 {
				// Final byte's trailing bits are EOS padding, not data.
				if lastByte && bit == 1 {
					return string(out), nil
				}
				return "", errInvalidHuffman
			}
			idx = next
			if huffmanTree[idx].sym >= 0 {
				out = append(out, byte(huffmanTree[idx].sym))
				idx = 0
			}
		}
	}
	return string(out), nil
}
