// Package auth implements the login flow: key derivation, the login
// exchange, master key recovery, and credential persistence.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/CrispStrobe/filen-cli/internal/api"
	"github.com/CrispStrobe/filen-cli/internal/config"
	"github.com/CrispStrobe/filen-cli/internal/crypto"
	"github.com/CrispStrobe/filen-cli/internal/logging"
)

// placeholderTwoFactor is sent when the account has no 2FA enabled.
const placeholderTwoFactor = "XXXXXX"

// ErrTwoFactorRequired indicates the account needs a one-time code; the
// caller should prompt and retry.
var ErrTwoFactorRequired = errors.New("two-factor code required")

// Service runs the login flow against the gateway.
type Service struct {
	api *api.Client
	log *logging.Logger
}

// NewService creates an auth service on top of the wire client.
func NewService(client *api.Client, log *logging.Logger) *Service {
	return &Service{api: client, log: log}
}

// Login authenticates the account and returns ready-to-save
// credentials. An empty twoFactorCode sends the placeholder; accounts
// with 2FA enabled then fail with ErrTwoFactorRequired so the caller
// can prompt for a real code.
//
// The real password never leaves the process: only the derived auth
// password goes over the wire, and the master keys come back inside an
// envelope only the derived master key can open.
func (s *Service) Login(ctx context.Context, email, password, twoFactorCode string) (*config.Credentials, error) {
	info, err := s.api.AuthInfo(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch auth info: %w", err)
	}
	s.log.Debug().Int("authVersion", info.AuthVersion).Msg("derived auth parameters")

	derived, err := crypto.DeriveMasterKeys(password, info.AuthVersion, info.Salt)
	if err != nil {
		return nil, err
	}

	if twoFactorCode == "" {
		twoFactorCode = placeholderTwoFactor
	}
	loginResp, err := s.api.Login(ctx, &api.LoginRequest{
		Email:         email,
		Password:      derived.AuthPassword,
		TwoFactorCode: twoFactorCode,
		AuthVersion:   info.AuthVersion,
	})
	if err != nil {
		var apiErr *api.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == "enter_2fa" || apiErr.Code == "wrong_2fa") {
			return nil, ErrTwoFactorRequired
		}
		return nil, fmt.Errorf("login failed: %w", err)
	}

	// Accounts that rotated their password carry several envelopes;
	// every one the derived key opens stays in the chain, in server
	// order. When none open, the derived key itself is the chain.
	var masterKeys []string
	for _, envelope := range loginResp.MasterKeys {
		plaintext, err := crypto.DecryptMetadata(envelope, derived.MasterKey)
		if err != nil {
			s.log.Warn().Err(err).Msg("master key envelope did not open")
			continue
		}
		masterKeys = append(masterKeys, plaintext)
	}
	if len(masterKeys) == 0 {
		s.log.Warn().Msg("no master key recovered, falling back to the derived key")
		masterKeys = []string{derived.MasterKey}
	}

	s.api.SetAPIKey(loginResp.APIKey)

	baseFolder, err := s.api.UserBaseFolder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch base folder: %w", err)
	}
	userInfo, err := s.api.UserInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	creds := &config.Credentials{
		Email:          email,
		APIKey:         loginResp.APIKey,
		MasterKeys:     strings.Join(masterKeys, "|"),
		BaseFolderUUID: baseFolder,
		UserID:         userInfo.ID,
	}
	if err := config.SaveCredentials(creds); err != nil {
		return nil, err
	}

	s.log.Info().Str("email", email).Msg("logged in")
	return creds, nil
}

// Logout deletes the saved session.
func (s *Service) Logout() error {
	return config.DeleteCredentials()
}
