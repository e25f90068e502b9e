/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package certificates turns declarative TLS material (certs, CAs, cipher
// and curve preference, client-auth policy) into a *tls.Config, the way the
// teacher's certificates package does for every TLS-fronted server in the
// toolbox. The ALPN preference list feeds the TLS codec's protocol
// negotiation (spec §4.2/§6): h2 then http/1.1 by default.
package certificates

import (
	"crypto/tls"
	"fmt"

	libval "github.com/go-playground/validator/v10"
	tlsaut "github.com/nabbar/reactord/certificates/auth"
	tlscas "github.com/nabbar/reactord/certificates/ca"
	tlscrt "github.com/nabbar/reactord/certificates/certs"
	tlscpr "github.com/nabbar/reactord/certificates/cipher"
	tlscrv "github.com/nabbar/reactord/certificates/curves"
	tlsvrs "github.com/nabbar/reactord/certificates/tlsversion"
)

// Config describes TLS material for one endpoint (server or client). The
// same shape serves both the TLS-server and TLS-client codec variants
// (spec §4.2); Config.Client toggles which crypto/tls fields get set.
type Config struct {
	Certs       []tlscrt.Certif    `mapstructure:"certs" json:"certs" yaml:"certs" toml:"certs" validate:"omitempty,dive"`
	RootCA      []tlscas.Cert      `mapstructure:"rootCA" json:"rootCA" yaml:"rootCA" toml:"rootCA"`
	ClientCA    []tlscas.Cert      `mapstructure:"clientCA" json:"clientCA" yaml:"clientCA" toml:"clientCA"`
	CipherList  []tlscpr.Cipher    `mapstructure:"cipherList" json:"cipherList" yaml:"cipherList" toml:"cipherList"`
	CurveList   []tlscrv.Curve     `mapstructure:"curveList" json:"curveList" yaml:"curveList" toml:"curveList"`
	VersionMin  tlsvrs.Version     `mapstructure:"versionMin" json:"versionMin" yaml:"versionMin" toml:"versionMin"`
	VersionMax  tlsvrs.Version     `mapstructure:"versionMax" json:"versionMax" yaml:"versionMax" toml:"versionMax"`
	ClientAuth  tlsaut.ClientAuth  `mapstructure:"clientAuth" json:"clientAuth" yaml:"clientAuth" toml:"clientAuth"`
	ALPN        []string           `mapstructure:"alpn" json:"alpn" yaml:"alpn" toml:"alpn"`
	ServerName  string             `mapstructure:"serverName" json:"serverName" yaml:"serverName" toml:"serverName"`
	Client      bool               `mapstructure:"client" json:"client" yaml:"client" toml:"client"`
	InsecureSkip bool              `mapstructure:"insecureSkipVerify" json:"insecureSkipVerify" yaml:"insecureSkipVerify" toml:"insecureSkipVerify"`
}

// DefaultALPN is the negotiation order spec §4.2/§6 requires: h2 first,
// http/1.1 as the fallback.
var DefaultALPN = []string{"h2", "http/1.1"}

func (c Config) Validate() error {
	v := libval.New()
	if !c.Client && len(c.Certs) == 0 {
		return fmt.Errorf("tls server config requires at least one certificate")
	}
	return v.Struct(c)
}

// ToTLSConfig builds the *tls.Config this Config describes.
func (c Config) ToTLSConfig() (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	alpn := c.ALPN
	if len(alpn) == 0 {
		alpn = DefaultALPN
	}

	cfg := &tls.Config{
		MinVersion:       uint16(orDefault(c.VersionMin, tlsvrs.TLS12)),
		MaxVersion:       uint16(orDefault(c.VersionMax, tlsvrs.TLS13)),
		CipherSuites:     tlscpr.List(c.CipherList),
		CurvePreferences: tlscrv.List(c.CurveList),
		NextProtos:       alpn,
		ServerName:       c.ServerName,
		InsecureSkipVerify: c.InsecureSkip,
	}

	if c.Client {
		pool, err := tlscas.Pool(c.RootCA)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
		if len(c.Certs) > 0 {
			crts, err := tlscrt.LoadAll(c.Certs)
			if err != nil {
				return nil, err
			}
			cfg.Certificates = crts
		}
		return cfg, nil
	}

	crts, err := tlscrt.LoadAll(c.Certs)
	if err != nil {
		return nil, err
	}
	cfg.Certificates = crts
	cfg.ClientAuth = tls.ClientAuthType(c.ClientAuth)

	if c.ClientAuth != tlsaut.NoClientCert {
		pool, err := tlscas.Pool(c.ClientCA)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
	}

	return cfg, nil
}

func orDefault(v, def tlsvrs.Version) tlsvrs.Version {
	if v == tlsvrs.Unknown {
		return def
	}
	return v
}
