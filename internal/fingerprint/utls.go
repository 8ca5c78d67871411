package fingerprint

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	utls "github.com/refraction-networking/utls"

	"github.com/FranksOps/rankwatch/pkg/useragent"
)

// Profile represents a recognized TLS fingerprint profile.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard go TLS
	ProfileRandom  Profile = "random" // randomized uTLS profile
	// ProfileAuto picks the profile matching the request's User-Agent family.
	ProfileAuto Profile = "auto"
)

// ParseProfile validates a profile name as given on the command line.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return ProfileAuto, nil
	case ProfileChrome, ProfileFirefox, ProfileSafari, ProfileGo, ProfileRandom, ProfileAuto:
		return p, nil
	}
	return "", fmt.Errorf("fingerprint: unknown profile %q", s)
}

// ForUserAgent returns the profile whose ClientHello matches the browser ua
// claims to be. Unknown agents keep the Go handshake.
func ForUserAgent(ua string) Profile {
	switch useragent.FamilyOf(ua) {
	case useragent.Chrome:
		return ProfileChrome
	case useragent.Firefox:
		return ProfileFirefox
	case useragent.Safari:
		return ProfileSafari
	default:
		return ProfileGo
	}
}

// Options tune the transport returned by Transport.
type Options struct {
	// Base is cloned for connection settings. Nil uses http.DefaultTransport.
	Base *http.Transport
	// Proxy replaces the base transport's proxy selection when set.
	Proxy func(*http.Request) (*url.URL, error)
	// InsecureSkipVerify disables certificate checks, for test servers only.
	InsecureSkipVerify bool
}

// Transport returns an *http.Transport presenting the ClientHello of profile
// p. "go" keeps the standard library handshake. Browser profiles are limited
// to HTTP/1.1 over ALPN since the returned transport does not speak HTTP/2 on
// custom TLS connections. ProfileAuto must be resolved with ForUserAgent first.
func Transport(p Profile, opts Options) (*http.Transport, error) {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport.(*http.Transport)
	}
	transport := base.Clone()
	if opts.Proxy != nil {
		transport.Proxy = opts.Proxy
	}

	if p == ProfileGo {
		if opts.InsecureSkipVerify {
			if transport.TLSClientConfig == nil {
				transport.TLSClientConfig = &tls.Config{}
			}
			transport.TLSClientConfig.InsecureSkipVerify = true
		}
		return transport, nil
	}

	newConn, err := helloFactory(p)
	if err != nil {
		return nil, err
	}

	dial := transport.DialContext
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := dial(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := newConn(tcpConn, &utls.Config{
			ServerName:         host,
			InsecureSkipVerify: opts.InsecureSkipVerify,
		})
		if err != nil {
			_ = tcpConn.Close()
			return nil, err
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake failed: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}

type connFactory func(net.Conn, *utls.Config) (*utls.UConn, error)

func helloFactory(p Profile) (connFactory, error) {
	var id utls.ClientHelloID
	switch p {
	case ProfileChrome:
		id = utls.HelloChrome_Auto
	case ProfileFirefox:
		id = utls.HelloFirefox_Auto
	case ProfileSafari:
		id = utls.HelloIOS_Auto
	case ProfileRandom:
		// randomized hellos have no fixed spec to rewrite; this variant sends no ALPN
		return func(c net.Conn, cfg *utls.Config) (*utls.UConn, error) {
			return utls.UClient(c, cfg, utls.HelloRandomizedNoALPN), nil
		}, nil
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	return func(c net.Conn, cfg *utls.Config) (*utls.UConn, error) {
		spec, err := utls.UTLSIdToSpec(id)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: %s spec: %w", p, err)
		}
		for _, ext := range spec.Extensions {
			if alpn, ok := ext.(*utls.ALPNExtension); ok {
				alpn.AlpnProtocols = []string{"http/1.1"}
			}
		}
		uConn := utls.UClient(c, cfg, utls.HelloCustom)
		if err := uConn.ApplyPreset(&spec); err != nil {
			return nil, fmt.Errorf("fingerprint: apply %s preset: %w", p, err)
		}
		return uConn, nil
	}, nil
}
