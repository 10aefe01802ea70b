package entity

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// maxURLLength defines the maximum allowed length for URLs to prevent DoS attacks.
const maxURLLength = 2048

// ValidateURL validates the format and safety of a URL.
// It checks that the URL is well-formed, uses HTTP/HTTPS scheme, and has a valid host.
// It also blocks private IP addresses to prevent SSRF attacks.
// Returns a ValidationError if the URL is invalid or empty.
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return &ValidationError{Field: "url", Message: "URL is required"}
	}

	// DoS protection: enforce maximum URL length
	if len(rawURL) > maxURLLength {
		return &ValidationError{
			Field:   "url",
			Message: fmt.Sprintf("url must not exceed %d characters", maxURLLength),
		}
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}

	// HTTPまたはHTTPSスキームのみ許可
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return &ValidationError{Field: "url", Message: "URL must use http or https scheme"}
	}

	// ホスト名の検証
	if parsedURL.Host == "" {
		return &ValidationError{Field: "url", Message: "URL must have a valid host"}
	}

	// SSRF対策: プライベートIPアドレスをブロック
	host := parsedURL.Hostname()
	ips, err := net.LookupIP(host)
	if err == nil && len(ips) > 0 {
		for _, ip := range ips {
			if isPrivateIP(ip) {
				return &ValidationError{
					Field:   "url",
					Message: "url cannot point to private network",
				}
			}
		}
	}

	return nil
}

// isPrivateIP checks if an IP address is in a private or restricted range.
// This prevents SSRF attacks by blocking access to:
// - localhost (127.0.0.0/8, ::1)
// - link-local addresses (169.254.0.0/16, fe80::/10)
// - private networks (10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16)
// - cloud metadata endpoints (169.254.169.254)
func isPrivateIP(ip net.IP) bool {
	// localhost
	if ip.IsLoopback() {
		return true
	}

	// link-local
	if ip.IsLinkLocalUnicast() {
		return true
	}

	// Private IPv4 ranges
	privateIPv4Ranges := []string{
		"10.0.0.0/8",     // Private network
		"172.16.0.0/12",  // Private network
		"192.168.0.0/16", // Private network
		"169.254.0.0/16", // Link-local (includes cloud metadata)
	}

	for _, cidr := range privateIPv4Ranges {
		_, subnet, _ := net.ParseCIDR(cidr)
		if subnet.Contains(ip) {
			return true
		}
	}

	return false
}

// IMAPURI is the parsed, defaulted shape of an IMAP source URI:
// email://[user@]host[:port]/[mailbox]?tls=&accept_invalid_certs=&accept_invalid_hostnames=
type IMAPURI struct {
	User                  string
	Host                  string
	Port                  int
	Mailbox               string
	TLS                   bool
	AcceptInvalidCerts    bool
	AcceptInvalidHostname bool
}

// ValidateIMAPURI checks that a URI has the email:// scheme and a host.
// Full parsing/defaulting is done by ParseIMAPURI; this is the cheap
// registration-time check used by Source.Validate.
func ValidateIMAPURI(rawURI string) error {
	_, err := ParseIMAPURI(rawURI)
	return err
}

// ParseIMAPURI parses an IMAP source URI and resolves defaults per spec
// §4.B.2: port 993, tls=true, mailbox=INBOX, cert/hostname checks strict.
// The user part, when empty, is left blank here; the IMAP fetcher fills it
// in from the matching credential row's email address.
func ParseIMAPURI(rawURI string) (IMAPURI, error) {
	if rawURI == "" {
		return IMAPURI{}, &ValidationError{Field: "uri", Message: "uri is required"}
	}

	parsed, err := url.Parse(rawURI)
	if err != nil {
		return IMAPURI{}, fmt.Errorf("parse IMAP URI: %w", err)
	}

	if parsed.Scheme != "email" {
		return IMAPURI{}, &ValidationError{Field: "uri", Message: "IMAP source URI must use the email scheme"}
	}

	if parsed.Host == "" {
		return IMAPURI{}, &ValidationError{Field: "uri", Message: "IMAP source URI must have a host"}
	}

	result := IMAPURI{
		Host:                  parsed.Hostname(),
		Port:                  993,
		Mailbox:               "INBOX",
		TLS:                   true,
		AcceptInvalidCerts:    false,
		AcceptInvalidHostname: false,
	}

	if parsed.User != nil {
		result.User = parsed.User.Username()
	}

	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return IMAPURI{}, &ValidationError{Field: "uri", Message: "invalid port"}
		}
		result.Port = port
	}

	if mbox := parsed.Path; len(mbox) > 1 {
		result.Mailbox = mbox[1:]
	}

	q := parsed.Query()
	if v := q.Get("tls"); v != "" {
		result.TLS = v == "true" || v == "1"
	}
	if v := q.Get("accept_invalid_certs"); v != "" {
		result.AcceptInvalidCerts = v == "true" || v == "1"
	}
	if v := q.Get("accept_invalid_hostnames"); v != "" {
		result.AcceptInvalidHostname = v == "true" || v == "1"
	}

	return result, nil
}
