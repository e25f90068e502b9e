/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package hpack_test

import (
	"testing"

	libhpk "github.com/nabbar/reactord/protocol/hpack"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHpack(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "hpack suite")
}

var _ = Describe("integer codec", func() {
	It("round-trips every prefix width for a spread of values", func() {
		for _, prefix := range []uint8{4, 5, 6, 7} {
			for v := uint64(0); v < 1<<20; v += 997 {
				dst := libhpk.EncodeInteger(nil, v, prefix, 0)
				got, n, err := libhpk.DecodeInteger(dst, prefix)
				Expect(err).ToNot(HaveOccurred())
				Expect(n).To(Equal(len(dst)))
				Expect(got).To(Equal(v))
			}
		}
	})

	It("round-trips large values near 2^28", func() {
		v := uint64(1) << 28
		dst := libhpk.EncodeInteger(nil, v, 7, 0)
		got, _, err := libhpk.DecodeInteger(dst, 7)
		Expect(err).ToNot(HaveOccurred())
		Expect(got).To(Equal(v))
	})
})

var _ = Describe("string codec", func() {
	It("round-trips raw strings", func() {
		for _, s := range []string{"", "a", "www.example.com", "custom-key", "custom-header"} {
			dst := libhpk.EncodeString(nil, s, false)
			got, n, err := libhpk.DecodeString(dst)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(len(dst)))
			Expect(got).To(Equal(s))
		}
	})

	It("round-trips huffman-coded strings", func() {
		for _, s := range []string{"", "a", "www.example.com", "no-cache", "custom-key", "private", "Mon, 21 Oct 2013 20:13:21 GMT"} {
			dst := libhpk.EncodeString(nil, s, true)
			got, n, err := libhpk.DecodeString(dst)
			Expect(err).ToNot(HaveOccurred())
			Expect(n).To(Equal(len(dst)))
			Expect(got).To(Equal(s))
		}
	})
})

var _ = Describe("static table", func() {
	It("resolves well-known names to their RFC 7541 index", func() {
		Expect(libhpk.StaticIndexOfName(":method")).To(Equal(2))
		Expect(libhpk.StaticIndexOfName(":path")).To(Equal(4))
		Expect(libhpk.StaticIndexOfName("content-type")).To(Equal(31))
	})

	It("resolves index 1 to :authority with an empty value", func() {
		f, ok := libhpk.Resolve(nil, 1)
		Expect(ok).To(BeTrue())
		Expect(f.Name).To(Equal(":authority"))
		Expect(f.Value).To(Equal(""))
	})
})

var _ = Describe("DynamicTable", func() {
	It("evicts oldest entries once the size bound is exceeded", func() {
		d := libhpk.NewDynamicTable(64)
		d.Insert(libhpk.HeaderField{Name: "a", Value: "111111111111111111"})
		Expect(d.Len()).To(Equal(1))
		d.Insert(libhpk.HeaderField{Name: "b", Value: "222222222222222222"})
		Expect(d.Len()).To(Equal(1))
	})

	It("resolves dynamic-table entries at index 62 and beyond", func() {
		d := libhpk.NewDynamicTable(4096)
		d.Insert(libhpk.HeaderField{Name: "x-custom", Value: "v1"})
		f, ok := libhpk.Resolve(d, 62)
		Expect(ok).To(BeTrue())
		Expect(f.Name).To(Equal("x-custom"))
	})
})

var _ = Describe("Encoder/Decoder", func() {
	It("round-trips a header block with indexing", func() {
		enc := libhpk.NewEncoder(4096)
		var block []byte
		block = enc.WriteField(block, libhpk.HeaderField{Name: ":method", Value: "GET"}, false)
		block = enc.WriteField(block, libhpk.HeaderField{Name: "x-request-id", Value: "abc123"}, true)

		dec := libhpk.NewDecoder(4096)
		fields, err := dec.DecodeBlock(block)
		Expect(err).ToNot(HaveOccurred())
		Expect(fields).To(HaveLen(2))
		Expect(fields[0].Name).To(Equal(":method"))
		Expect(fields[1].Name).To(Equal("x-request-id"))
		Expect(dec.Dyn.Len()).To(Equal(1))
	})
})
