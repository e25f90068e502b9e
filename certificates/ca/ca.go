/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 */

// Package ca builds x509.CertPool values from PEM material, matching the
// teacher's certificates/ca package.
package ca

import (
	"crypto/x509"
	"fmt"
	"os"
)

// Cert names either a CA file path or inline PEM.
type Cert struct {
	File string `mapstructure:"file" json:"file" yaml:"file" toml:"file"`
	PEM  string `mapstructure:"pem" json:"pem" yaml:"pem" toml:"pem"`
}

func (c Cert) load() ([]byte, error) {
	if c.File != "" {
		return os.ReadFile(c.File)
	}
	return []byte(c.PEM), nil
}

// Pool builds an x509.CertPool from the given CA entries. An empty list
// returns nil so callers fall back to the system pool.
func Pool(list []Cert) (*x509.CertPool, error) {
	if len(list) == 0 {
		return nil, nil
	}
	pool := x509.NewCertPool()
	for i, c := range list {
		pem, err := c.load()
		if err != nil {
			return nil, fmt.Errorf("ca #%d: %w", i, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("ca #%d: no certificate found in PEM", i)
		}
	}
	return pool, nil
}
