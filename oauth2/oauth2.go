package oauth2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/caasmo/identity/config"
	"github.com/caasmo/identity/db"
)

// tokenExchangeTimeout bounds the code-for-token exchange so an
// unresponsive provider cannot hang the caller.
const tokenExchangeTimeout = 10 * time.Second

// FetchUser runs the server side of the OAuth2 code flow: it exchanges the
// authorization code for a token, fetches the provider's user info endpoint
// and maps the response to a user. The returned user is a provider-sourced
// profile, not a stored record; reconciliation against the user store
// happens in core.
func FetchUser(ctx context.Context, provider config.OAuth2Provider, code, codeVerifier, redirectURI string) (*db.User, error) {
	oauth2Config := oauth2.Config{
		ClientID:     provider.ClientID,
		ClientSecret: provider.ClientSecret,
		RedirectURL:  redirectURI,
		Scopes:       provider.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  provider.AuthURL,
			TokenURL: provider.TokenURL,
		},
	}

	exchangeCtx, cancel := context.WithTimeout(ctx, tokenExchangeTimeout)
	defer cancel()

	token, err := oauth2Config.Exchange(
		exchangeCtx,
		code,
		oauth2.SetAuthURLParam("code_verifier", codeVerifier),
	)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed for %s: %w", provider.Name, err)
	}

	client := oauth2Config.Client(exchangeCtx, token)
	resp, err := client.Get(provider.UserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("user info request failed for %s: %w", provider.Name, err)
	}
	defer resp.Body.Close()

	return UserFromUserInfoURL(resp, provider.Name)
}

// UserFromUserInfoURL maps a provider user info response to a user. Each
// supported provider has its own payload shape.
func UserFromUserInfoURL(resp *http.Response, providerName string) (*db.User, error) {
	switch providerName {
	case config.OAuth2ProviderGoogle:
		return googleUser(resp)
	case config.OAuth2ProviderGitHub:
		return githubUser(resp)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", providerName)
	}
}

func googleUser(resp *http.Response) (*db.User, error) {
	extracted := struct {
		Id            string `json:"sub"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&extracted); err != nil {
		return nil, fmt.Errorf("failed to decode google user info: %w", err)
	}

	// only accept addresses the provider itself has verified; an unverified
	// address would let anyone claim an existing account
	if !extracted.EmailVerified {
		return nil, fmt.Errorf("google email not verified")
	}

	return &db.User{
		Name:  extracted.Name,
		Email: extracted.Email,
	}, nil
}

func githubUser(resp *http.Response) (*db.User, error) {
	extracted := struct {
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&extracted); err != nil {
		return nil, fmt.Errorf("failed to decode github user info: %w", err)
	}

	return &db.User{
		Username: extracted.Login,
		Name:     extracted.Name,
		Email:    extracted.Email,
	}, nil
}
