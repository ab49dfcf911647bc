package services

import (
	"crypto/tls"
	"crypto/x509"
	"net/http"
	"strings"
	"time"
)

// Timeouts for the three kinds of request the agent makes.
const (
	CatalogTimeout  = 30 * time.Second
	DownloadTimeout = 300 * time.Second
	VoteTimeout     = 10 * time.Second
)

// relaxedDomains serve self-signed certificates and are accepted without chain verification.
var relaxedDomains = []string{"sheepserver.net", "archive.org"}

// RelaxedHost reports whether certificate verification is skipped for host.
//
// Only the relaxed domains themselves and their subdomains match.
func RelaxedHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, d := range relaxedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// NewHTTPClient returns a client with the given overall timeout.
//
// Certificates are verified normally except for hosts matched by [RelaxedHost].
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: true,
		VerifyConnection:   verifyConnection,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// verifyConnection performs the standard chain and hostname checks unless the server is relaxed.
func verifyConnection(cs tls.ConnectionState) error {
	if RelaxedHost(cs.ServerName) {
		return nil
	}
	if len(cs.PeerCertificates) == 0 {
		return x509.CertificateInvalidError{Reason: x509.NotAuthorizedToSign, Detail: "no peer certificates"}
	}

	opts := x509.VerifyOptions{
		DNSName:       cs.ServerName,
		Intermediates: x509.NewCertPool(),
	}
	for _, cert := range cs.PeerCertificates[1:] {
		opts.Intermediates.AddCert(cert)
	}
	_, err := cs.PeerCertificates[0].Verify(opts)
	return err
}
