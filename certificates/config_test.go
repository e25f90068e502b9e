/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

package certificates_test

import (
	"testing"

	libtls "github.com/nabbar/reactord/certificates"
	tlscrt "github.com/nabbar/reactord/certificates/certs"
	tlshlp "github.com/nabbar/reactord/certificates/testhelpers"
	tlsvrs "github.com/nabbar/reactord/certificates/tlsversion"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestCertificates(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "certificates suite")
}

var _ = Describe("Config.ToTLSConfig", func() {
	It("rejects a server config with no certificates", func() {
		cfg := libtls.Config{}
		_, err := cfg.ToTLSConfig()
		Expect(err).To(HaveOccurred())
	})

	It("builds a server *tls.Config with h2-first ALPN by default", func() {
		pair, err := tlshlp.GenerateSelfSigned()
		Expect(err).ToNot(HaveOccurred())

		cfg := libtls.Config{
			Certs: []tlscrt.Certif{{CertPEM: pair.CertPEM, KeyPEM: pair.KeyPEM}},
		}
		tc, err := cfg.ToTLSConfig()
		Expect(err).ToNot(HaveOccurred())
		Expect(tc.Certificates).To(HaveLen(1))
		Expect(tc.NextProtos).To(Equal([]string{"h2", "http/1.1"}))
		Expect(tc.MinVersion).To(Equal(uint16(tlsvrs.TLS12)))
	})

	It("honors an explicit ALPN preference list", func() {
		pair, err := tlshlp.GenerateSelfSigned()
		Expect(err).ToNot(HaveOccurred())

		cfg := libtls.Config{
			Certs: []tlscrt.Certif{{CertPEM: pair.CertPEM, KeyPEM: pair.KeyPEM}},
			ALPN:  []string{"http/1.1"},
		}
		tc, err := cfg.ToTLSConfig()
		Expect(err).ToNot(HaveOccurred())
		Expect(tc.NextProtos).To(Equal([]string{"http/1.1"}))
	})

	It("builds a client *tls.Config without requiring certificates", func() {
		cfg := libtls.Config{Client: true}
		tc, err := cfg.ToTLSConfig()
		Expect(err).ToNot(HaveOccurred())
		Expect(tc.Certificates).To(BeEmpty())
	})
})
