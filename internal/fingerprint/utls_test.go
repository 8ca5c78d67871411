package fingerprint

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTransport_Profiles(t *testing.T) {
	ts := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	profiles := []Profile{
		ProfileChrome,
		ProfileFirefox,
		ProfileSafari,
		ProfileGo,
		ProfileRandom,
	}

	for _, p := range profiles {
		t.Run(string(p), func(t *testing.T) {
			// httptest.NewTLSServer uses self-signed certs.
			tr, err := Transport(p, Options{InsecureSkipVerify: true})
			if err != nil {
				t.Fatalf("unexpected error creating transport for %s: %v", p, err)
			}
			if p != ProfileGo && tr.DialTLSContext == nil {
				t.Fatalf("expected uTLS dialer for profile %s", p)
			}

			client := &http.Client{Transport: tr}
			resp, err := client.Get(ts.URL)
			if err != nil {
				t.Fatalf("request failed for profile %s: %v", p, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				t.Errorf("expected 200 OK, got %d for profile %s", resp.StatusCode, p)
			}
		})
	}
}

func TestTransport_UnknownProfile(t *testing.T) {
	_, err := Transport(Profile("unknown_browser"), Options{})
	if err == nil {
		t.Fatal("expected error for unknown profile, got nil")
	}
	if err.Error() != `fingerprint: unknown profile "unknown_browser"` {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestParseProfile(t *testing.T) {
	tests := map[string]Profile{
		"":         ProfileAuto,
		"Chrome":   ProfileChrome,
		" firefox": ProfileFirefox,
		"go":       ProfileGo,
		"random":   ProfileRandom,
		"auto":     ProfileAuto,
	}
	for in, want := range tests {
		got, err := ParseProfile(in)
		if err != nil {
			t.Errorf("ParseProfile(%q) returned error: %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseProfile(%q) = %s, want %s", in, got, want)
		}
	}

	if _, err := ParseProfile("netscape"); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestForUserAgent(t *testing.T) {
	tests := []struct {
		ua   string
		want Profile
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36", ProfileChrome},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0", ProfileFirefox},
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.2 Safari/605.1.15", ProfileSafari},
		{"rankwatch/1.0", ProfileGo},
	}
	for _, tt := range tests {
		if got := ForUserAgent(tt.ua); got != tt.want {
			t.Errorf("ForUserAgent(%q) = %s, want %s", tt.ua, got, tt.want)
		}
	}
}
