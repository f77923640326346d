// Package validation provides URL validation with SSRF protection.
//
// It validates server URLs against private IP ranges, cloud metadata
// endpoints, and other potentially dangerous destinations.
//
// Private IP ranges can be allowed via the LUNAR_ALLOW_PRIVATE environment
// variable (accepts any value recognized by strconv.ParseBool: 1, t, true,
// TRUE, etc.) or by calling SetAllowPrivate(true). Even when private IPs are
// allowed, cloud metadata endpoints remain blocked.
package validation

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// allowPrivate controls whether private/localhost URLs are permitted.
// Set via LUNAR_ALLOW_PRIVATE environment variable or SetAllowPrivate().
var allowPrivate atomic.Bool

// privateNetworks contains pre-parsed private IP ranges for efficient lookups.
var privateNetworks []*net.IPNet

func init() {
	v, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("LUNAR_ALLOW_PRIVATE")))
	allowPrivate.Store(v)

	privateCIDRs := []string{
		// Private IPv4 ranges
		"10.0.0.0/8",      // RFC1918
		"172.16.0.0/12",   // RFC1918
		"192.168.0.0/16",  // RFC1918
		"100.64.0.0/10",   // RFC6598 - Shared Address Space
		"169.254.0.0/16",  // RFC3927 - Link Local
		"192.0.0.0/24",    // RFC6890
		"192.0.2.0/24",    // RFC5737 - Documentation
		"198.18.0.0/15",   // RFC2544 - Benchmarking
		"198.51.100.0/24", // RFC5737 - Documentation
		"203.0.113.0/24",  // RFC5737 - Documentation
		"240.0.0.0/4",     // RFC1112 - Reserved
		// Private IPv6 ranges
		"fc00::/7",      // RFC4193 - Unique Local Addresses
		"fe80::/10",     // RFC4291 - Link Local
		"ff00::/8",      // RFC4291 - Multicast
		"::1/128",       // RFC4291 - Loopback
		"::/128",        // RFC4291 - Unspecified
		"100::/64",      // RFC6666 - Discard Prefix
		"2001::/32",     // RFC4380 - Teredo
		"2001:10::/28",  // RFC4843 - ORCHID
		"2001:db8::/32", // RFC3849 - Documentation
	}

	privateNetworks = make([]*net.IPNet, 0, len(privateCIDRs))
	for _, cidr := range privateCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		privateNetworks = append(privateNetworks, network)
	}
}

// SetAllowPrivate enables or disables allowing private and localhost URLs.
// Cloud metadata endpoints remain blocked regardless of this setting. This
// is useful for development where the Lunar server runs locally.
func SetAllowPrivate(enabled bool) {
	allowPrivate.Store(enabled)
}

// AllowPrivateEnabled reports whether private and localhost URLs are
// currently allowed.
func AllowPrivateEnabled() bool {
	return allowPrivate.Load()
}

// ValidateServerURL validates a Lunar server URL to prevent SSRF attacks.
// It checks that the URL:
//   - Uses http or https scheme
//   - Contains a valid hostname
//   - Does not resolve to private IP ranges (unless AllowPrivate is enabled)
//   - Does not point to localhost (unless AllowPrivate is enabled)
//   - Does not target cloud metadata endpoints (always blocked)
func ValidateServerURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: only http and https are allowed, got %q", parsedURL.Scheme)
	}

	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("URL must contain a hostname")
	}

	if !allowPrivate.Load() && isLocalhost(hostname) {
		return fmt.Errorf("localhost URLs are not allowed")
	}

	if isCloudMetadata(hostname) {
		return fmt.Errorf("cloud metadata endpoints are not allowed")
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if err := validateIPAddress(ip); err != nil {
			return err
		}
	} else {
		if err := validateDomainName(hostname); err != nil {
			return err
		}
	}

	return nil
}

// isLocalhost checks for localhost variants
func isLocalhost(hostname string) bool {
	lowercase := strings.ToLower(hostname)
	localhostVariants := []string{
		"localhost",
		"127.0.0.1",
		"::1",
		"0.0.0.0",
		"::",
	}

	for _, variant := range localhostVariants {
		if lowercase == variant {
			return true
		}
	}

	return strings.HasSuffix(lowercase, ".localhost")
}

// isCloudMetadata checks for cloud metadata endpoints
func isCloudMetadata(hostname string) bool {
	lowercase := strings.ToLower(hostname)
	cloudMetadataEndpoints := []string{
		"169.254.169.254",          // AWS, Azure, GCP, DigitalOcean
		"metadata.google.internal", // GCP
		"metadata",                 // Generic
		"instance-data",            // AWS
		"fd00:ec2::254",            // AWS IPv6
	}

	for _, endpoint := range cloudMetadataEndpoints {
		if lowercase == endpoint {
			return true
		}
	}

	return strings.HasSuffix(lowercase, ".metadata.google.internal")
}

// validateIPAddress validates that an IP address is not private or reserved
func validateIPAddress(ip net.IP) error {
	// Cloud metadata IP first (most specific)
	if ip.String() == "169.254.169.254" {
		return fmt.Errorf("cloud metadata IP address is not allowed")
	}

	if ip.IsUnspecified() {
		return fmt.Errorf("unspecified IP addresses are not allowed")
	}

	if allowPrivate.Load() {
		// Still block link-local even when allowing private IPs.
		if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			return fmt.Errorf("link-local IP addresses are not allowed")
		}
		return nil
	}

	if ip.IsLoopback() {
		return fmt.Errorf("loopback IP addresses are not allowed")
	}

	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return fmt.Errorf("link-local IP addresses are not allowed")
	}

	if isPrivateIP(ip) {
		return fmt.Errorf("private IP addresses are not allowed")
	}

	return nil
}

func isPrivateIP(ip net.IP) bool {
	for _, network := range privateNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// validateDomainName resolves a domain and checks all IPs it points to.
func validateDomainName(hostname string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	resolver := &net.Resolver{}
	ips, err := resolver.LookupIP(ctx, "ip", hostname)
	if err != nil {
		// DNS resolution failure is allowed - we don't block domains that
		// don't resolve yet.
		return nil
	}

	for _, ip := range ips {
		if err := validateIPAddress(ip); err != nil {
			return fmt.Errorf("domain %q resolves to forbidden IP %s: %w", hostname, ip.String(), err)
		}
	}

	return nil
}
