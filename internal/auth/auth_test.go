package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/crypto"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

const (
	testEmail    = "user@example.com"
	testPassword = "correct horse battery staple"
	testSalt     = "account-salt"
)

func mustDerive(t *testing.T) crypto.DerivedKeys {
	t.Helper()
	derived, err := crypto.DeriveMasterKeys(testPassword, 2, testSalt)
	if err != nil {
		t.Fatalf("DeriveMasterKeys failed: %v", err)
	}
	return derived
}

func seal(t *testing.T, plaintext, key string) string {
	t.Helper()
	envelope, err := crypto.EncryptMetadata(plaintext, key)
	if err != nil {
		t.Fatalf("EncryptMetadata failed: %v", err)
	}
	return envelope
}

// fakeGateway serves the four endpoints the login flow touches. The
// master keys envelope is sealed with the key the client is expected to
// derive, so decryption only succeeds if derivation matches.
func fakeGateway(t *testing.T, requireTwoFactor bool) *httptest.Server {
	t.Helper()
	derived := mustDerive(t)
	envelope := seal(t, derived.MasterKey, derived.MasterKey)
	return gatewayWithMasterKeys(t, requireTwoFactor, fmt.Sprintf("%q", envelope))
}

// gatewayWithMasterKeys lets a test choose the raw JSON of the
// masterKeys field, which the gateway serves as either a bare envelope
// string or an array of envelopes.
func gatewayWithMasterKeys(t *testing.T, requireTwoFactor bool, masterKeysJSON string) *httptest.Server {
	t.Helper()
	derived := mustDerive(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/v3/auth/info", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"authVersion":2,"salt":%q}}`, testSalt)
	})
	mux.HandleFunc("/v3/login", func(w http.ResponseWriter, r *http.Request) {
		var req api.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad login body: %v", err)
		}
		if req.Password == testPassword {
			t.Error("raw password sent over the wire")
		}
		if req.Password != derived.AuthPassword {
			w.Write([]byte(`{"status":false,"message":"wrong password","code":"wrong_password"}`))
			return
		}
		if requireTwoFactor && req.TwoFactorCode == "XXXXXX" {
			w.Write([]byte(`{"status":false,"message":"enter 2fa","code":"enter_2fa"}`))
			return
		}
		fmt.Fprintf(w, `{"status":true,"message":"ok","data":{"apiKey":"session-key","masterKeys":%s}}`, masterKeysJSON)
	})
	mux.HandleFunc("/v3/user/baseFolder", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":true,"message":"ok","data":{"uuid":"base-folder-uuid"}}`))
	})
	mux.HandleFunc("/v3/user/info", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer session-key" {
			t.Errorf("user/info called without session token")
		}
		w.Write([]byte(`{"status":true,"message":"ok","data":{"id":77,"email":"user@example.com"}}`))
	})
	return httptest.NewServer(mux)
}

func newService(serverURL string) *Service {
	settings := &config.Settings{GatewayURL: serverURL, IngestURL: serverURL, EgestURL: serverURL}
	client := api.NewClient(settings, "", logging.NewDefaultLogger())
	return NewService(client, logging.NewDefaultLogger())
}

func TestLogin(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	server := fakeGateway(t, false)
	defer server.Close()

	svc := newService(server.URL)
	creds, err := svc.Login(context.Background(), testEmail, testPassword, "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if creds.APIKey != "session-key" {
		t.Errorf("apiKey = %q", creds.APIKey)
	}
	if creds.BaseFolderUUID != "base-folder-uuid" {
		t.Errorf("baseFolderUUID = %q", creds.BaseFolderUUID)
	}
	if creds.UserID != 77 {
		t.Errorf("userId = %d, want 77", creds.UserID)
	}
	if creds.CurrentMasterKey() == "" {
		t.Error("no master key recovered")
	}

	// The session was persisted.
	loaded, err := config.LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if loaded.APIKey != creds.APIKey {
		t.Error("saved credentials do not match")
	}

	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := config.LoadCredentials(); !errors.Is(err, config.ErrNotLoggedIn) {
		t.Errorf("expected ErrNotLoggedIn after logout, got %v", err)
	}
}

func TestLoginMasterKeyList(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	// The account rotated its password once: the chain holds an older
	// key and the current one, plus an envelope from a lost device no
	// key opens. The unreadable envelope is dropped, the rest kept in
	// server order.
	derived := mustDerive(t)
	foreign := seal(t, "unreachable-key", "some-other-master-key")
	older := seal(t, "older-master-key", derived.MasterKey)
	current := seal(t, derived.MasterKey, derived.MasterKey)
	server := gatewayWithMasterKeys(t, false,
		fmt.Sprintf(`[%q,%q,%q]`, foreign, older, current))
	defer server.Close()

	svc := newService(server.URL)
	creds, err := svc.Login(context.Background(), testEmail, testPassword, "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	keys := creds.MasterKeyList()
	if len(keys) != 2 {
		t.Fatalf("master keys = %d, want 2", len(keys))
	}
	if keys[0] != "older-master-key" {
		t.Errorf("first key = %q, want the older key", keys[0])
	}
	if creds.CurrentMasterKey() != derived.MasterKey {
		t.Error("newest key is not the current one")
	}
}

func TestLoginMasterKeyFallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	// None of the returned envelopes open with the derived key. Login
	// still succeeds and the derived key becomes the chain.
	derived := mustDerive(t)
	foreign := seal(t, "unreachable-key", "some-other-master-key")
	server := gatewayWithMasterKeys(t, false, fmt.Sprintf("%q", foreign))
	defer server.Close()

	svc := newService(server.URL)
	creds, err := svc.Login(context.Background(), testEmail, testPassword, "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if creds.CurrentMasterKey() != derived.MasterKey {
		t.Errorf("master key = %q, want the derived key", creds.CurrentMasterKey())
	}
}

func TestLoginTwoFactorRequired(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	server := fakeGateway(t, true)
	defer server.Close()

	svc := newService(server.URL)
	_, err := svc.Login(context.Background(), testEmail, testPassword, "")
	if !errors.Is(err, ErrTwoFactorRequired) {
		t.Fatalf("error = %v, want ErrTwoFactorRequired", err)
	}

	// With a real code the login goes through.
	creds, err := svc.Login(context.Background(), testEmail, testPassword, "123456")
	if err != nil {
		t.Fatalf("Login with code failed: %v", err)
	}
	if creds.APIKey != "session-key" {
		t.Errorf("apiKey = %q", creds.APIKey)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	server := fakeGateway(t, false)
	defer server.Close()

	svc := newService(server.URL)
	_, err := svc.Login(context.Background(), testEmail, "wrong password", "")
	if err == nil {
		t.Fatal("expected login failure")
	}
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Code != "wrong_password" {
		t.Errorf("code = %q", apiErr.Code)
	}
}
