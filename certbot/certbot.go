// Package certbot drives the external CA client that acquires and installs
// TLS certificates. The client owns the whole exchange: it reaches the CA
// over the network, answers the challenge through the live proxy, installs
// the key material, and rewrites the proxy site for TLS. This package only
// invokes it and reads back what it installed.
//
// The client must not run before the site is enabled and the proxy
// reloaded; the challenge is served through that site. The pipeline
// guarantees the ordering.
package certbot

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/siteup/siteup/interfaces"
)

// Request describes one certificate acquisition.
type Request struct {
	// Domain is the name the certificate is requested for.
	Domain interfaces.Domain

	// Email is the CA account contact. Empty means the account registers
	// explicitly without one.
	Email string

	// Redirect asks the client to rewrite the site so plain-HTTP requests
	// redirect to TLS.
	Redirect bool
}

// Certificate describes an installed certificate. Renewal is deliberately
// absent: the CA client's own scheduler keeps certificates fresh.
type Certificate struct {
	Domain    interfaces.Domain
	Issuer    string
	DNSNames  []string
	CertPath  string
	KeyPath   string
	NotBefore time.Time
	NotAfter  time.Time
}

// TimeToExpiry returns how long the certificate remains valid.
func (c *Certificate) TimeToExpiry() time.Duration {
	return time.Until(c.NotAfter)
}

// Provisioner invokes the CA client and inspects its live directory.
type Provisioner struct {
	log     *slog.Logger
	runner  interfaces.CommandRunner
	liveDir string
}

// NewProvisioner creates a provisioner reading installed certificates from
// liveDir.
func NewProvisioner(log *slog.Logger, runner interfaces.CommandRunner, liveDir string) *Provisioner {
	return &Provisioner{log: log, runner: runner, liveDir: liveDir}
}

// Obtain runs the CA client with the proxy-aware plugin for the requested
// domain. Unmet preconditions the pipeline never checks for (DNS not yet
// delegated, port 80 unreachable, CA rate limits) surface here as the
// client's own error output and exit code; nothing is retried.
func (p *Provisioner) Obtain(ctx context.Context, req Request) error {
	if err := req.Domain.Validate(); err != nil {
		return err
	}

	args := []string{"--nginx", "-d", req.Domain.String(), "--non-interactive", "--agree-tos"}
	if req.Email != "" {
		args = append(args, "-m", req.Email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}
	if req.Redirect {
		args = append(args, "--redirect")
	} else {
		args = append(args, "--no-redirect")
	}

	p.log.Info("Requesting certificate", "domain", req.Domain.String(), "redirect", req.Redirect)
	if err := p.runner.Run(ctx, "certbot", args...); err != nil {
		return fmt.Errorf("obtaining certificate for %s: %w", req.Domain, err)
	}
	return nil
}

// Installed reports whether the client has a certificate for the domain in
// its live directory.
func (p *Provisioner) Installed(domain interfaces.Domain) bool {
	_, err := os.Stat(p.certPath(domain))
	return err == nil
}

// InspectCertificate loads and parses the installed certificate for the
// domain.
func (p *Provisioner) InspectCertificate(domain interfaces.Domain) (*Certificate, error) {
	certPath := p.certPath(domain)
	data, err := os.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("reading certificate: %w", err)
	}

	// The live chain file is leaf-first.
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, errors.New("failed to decode certificate PEM block")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{
		Domain:    domain,
		Issuer:    cert.Issuer.CommonName,
		DNSNames:  cert.DNSNames,
		CertPath:  certPath,
		KeyPath:   filepath.Join(p.liveDir, domain.String(), "privkey.pem"),
		NotBefore: cert.NotBefore,
		NotAfter:  cert.NotAfter,
	}, nil
}

func (p *Provisioner) certPath(domain interfaces.Domain) string {
	return filepath.Join(p.liveDir, domain.String(), "fullchain.pem")
}
