package source

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/Schera-ole/fleetagent/internal/hostenv"
	models "github.com/Schera-ole/fleetagent/internal/model"
)

const defaultDialTimeout = 5 * time.Second

// SecuritySource inspects the TLS certificate served on the external URL,
// or a certificate file when one is configured.
type SecuritySource struct {
	env      hostenv.Environment
	certFile string
	now      func() time.Time
	fetch    func(ctx context.Context, addr, serverName string) (*x509.Certificate, error)
}

func NewSecuritySource(env hostenv.Environment, certFile string) *SecuritySource {
	return &SecuritySource{
		env:      env,
		certFile: certFile,
		now:      time.Now,
		fetch:    fetchPeerCertificate,
	}
}

func (s *SecuritySource) Category() models.Category {
	return models.Security
}

func (s *SecuritySource) Sample(ctx context.Context) models.MetricSet {
	if s.certFile != "" {
		cert, err := readCertificate(s.certFile)
		if err != nil {
			return models.UnavailableSet(models.Security, err.Error())
		}
		return s.describe(cert)
	}

	if set, ok := requireEnv(s.env, models.Security); !ok {
		return set
	}
	cfg, err := s.env.Config(ctx)
	if err != nil {
		return models.UnavailableSet(models.Security, err.Error())
	}

	u, err := url.Parse(cfg.ExternalURL)
	if cfg.ExternalURL == "" || err != nil || u.Scheme != "https" {
		disabled := models.Unavailable("ssl not enabled")
		return models.NewMetricSet(models.Security, map[string]models.Value{
			"ssl_enabled":      models.Bool(false),
			"cert_expiry_days": disabled,
			"cert_issuer":      disabled,
			"self_signed":      disabled,
		})
	}

	port := u.Port()
	if port == "" {
		port = "443"
	}
	cert, err := s.fetch(ctx, net.JoinHostPort(u.Hostname(), port), u.Hostname())
	if err != nil {
		failed := models.Unavailable(err.Error())
		return models.NewMetricSet(models.Security, map[string]models.Value{
			"ssl_enabled":      models.Bool(true),
			"cert_expiry_days": failed,
			"cert_issuer":      failed,
			"self_signed":      failed,
		})
	}
	return s.describe(cert)
}

func (s *SecuritySource) describe(cert *x509.Certificate) models.MetricSet {
	issuerCN := cert.Issuer.CommonName
	if issuerCN == "" {
		issuerCN = "Unknown"
	}
	issuer := issuerCN
	if len(cert.Issuer.Organization) > 0 && cert.Issuer.Organization[0] != "" {
		issuer = fmt.Sprintf("%s (%s)", cert.Issuer.Organization[0], issuerCN)
	}

	days := math.Floor(cert.NotAfter.Sub(s.now()).Hours() / 24)

	return models.NewMetricSet(models.Security, map[string]models.Value{
		"ssl_enabled":      models.Bool(true),
		"cert_expiry_days": models.Number(days),
		"cert_issuer":      models.String(issuer),
		"self_signed":      models.Bool(issuerCN == cert.Subject.CommonName),
	})
}

// fetchPeerCertificate returns the leaf certificate without verifying it;
// self-signed and expired certificates are reported like any other.
func fetchPeerCertificate(ctx context.Context, addr, serverName string) (*x509.Certificate, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: defaultDialTimeout},
		Config: &tls.Config{
			ServerName:         serverName,
			InsecureSkipVerify: true, //nolint:gosec
		},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return nil, errors.New("not a tls connection")
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return nil, errors.New("no peer certificate")
	}
	return certs[0], nil
}

func readCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read certificate: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("read certificate: no PEM certificate in %s", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}
	return cert, nil
}
