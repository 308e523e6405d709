package middleware

import (
	"context"
	"fmt"

	"github.com/giantswarm/mcp-oauth/providers"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// OIDCUserInfo is the provider-independent user-info shape mcp-oauth
// exposes after validating a token against an upstream IdP.
type OIDCUserInfo = providers.UserInfo

// OAuth2Verifier validates an access token against an upstream OIDC
// provider and returns its user info, the way mcp-oauth's provider
// implementations do for the authentication middleware's token
// extraction chain (§4.9 "authenticate through providers").
type OAuth2Verifier func(ctx context.Context, token string) (*OIDCUserInfo, error)

// OAuth2ClientCredentialsSource builds a TokenSource the dispatcher's
// outbound plugin calls can use to authenticate to a protected
// upstream MCP server, using the standard OAuth2 client-credentials
// grant (golang.org/x/oauth2/clientcredentials) with cfg's client ID,
// client secret and scopes against tokenURL.
func OAuth2ClientCredentialsSource(ctx context.Context, cfg oauth2.Config, tokenURL string) oauth2.TokenSource {
	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       cfg.Scopes,
	}
	return cc.TokenSource(ctx)
}

// OAuth2Provider adapts an OAuth2Verifier into a TokenProvider,
// folding the resulting OIDCUserInfo's subject into a Principal.
func OAuth2Provider(verify OAuth2Verifier) TokenProvider {
	return func(token string) (*Principal, error) {
		info, err := verify(context.Background(), token)
		if err != nil {
			return nil, fmt.Errorf("middleware: oauth2 verification failed: %w", err)
		}
		return &Principal{Subject: subjectOf(info), Claims: map[string]any{"oidc": info}}, nil
	}
}

// subjectOf renders the whole OIDCUserInfo value with %+v and uses
// that text as the subject; no single field of it is picked out.
func subjectOf(info *OIDCUserInfo) string {
	if info == nil {
		return ""
	}
	return fmt.Sprintf("%+v", info)
}
