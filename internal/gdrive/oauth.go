package gdrive

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"

	"github.com/inkpipe/inkpipe/internal/domain"
	"github.com/inkpipe/inkpipe/internal/observability"
)

// ReadOnlyScope grants read access to Drive contents.
const ReadOnlyScope = "https://www.googleapis.com/auth/drive.readonly"

// FileScope grants write access to files the app creates.
const FileScope = "https://www.googleapis.com/auth/drive.file"

const (
	googleAuthURL  = "https://accounts.google.com/o/oauth2/auth"
	googleTokenURL = "https://oauth2.googleapis.com/token"
	oobRedirectURI = "urn:ietf:wg:oauth:2.0:oob"
)

// clientSecrets matches the "installed" application JSON that the Google
// console exports.
type clientSecrets struct {
	Installed struct {
		ClientID     string   `json:"client_id"`
		ClientSecret string   `json:"client_secret"`
		RedirectURIs []string `json:"redirect_uris"`
	} `json:"installed"`
}

// OAuthOptions configures the installed-app authorization flow.
type OAuthOptions struct {
	ClientSecretsFile string
	TokenFile         string
	Scopes            []string
	// ForceTokenRefresh discards any cached token so the flow round-trips
	// through Google again.
	ForceTokenRefresh bool
	// Input and Output default to stdin/stdout; tests override them.
	Input  io.Reader
	Output io.Writer
}

// NewTokenSource resolves credentials for the Drive client: a cached token
// when present and valid, otherwise a console-driven authorization exchange
// whose result is cached for the next run.
func NewTokenSource(ctx context.Context, opts OAuthOptions, logger *observability.Logger) (oauth2.TokenSource, error) {
	cfg, err := loadClientSecrets(opts.ClientSecretsFile, opts.Scopes)
	if err != nil {
		return nil, err
	}

	tokenFile := opts.TokenFile
	if tokenFile == "" {
		base := strings.TrimSuffix(opts.ClientSecretsFile, filepath.Ext(opts.ClientSecretsFile))
		tokenFile = base + "_token.json"
	}

	if opts.ForceTokenRefresh {
		if err := os.Remove(tokenFile); err != nil && !os.IsNotExist(err) {
			logger.Warn().Str("path", tokenFile).Err(err).Msg("unable to remove cached token")
		}
	}

	token, err := readCachedToken(tokenFile)
	if err != nil {
		logger.Warn().Str("path", tokenFile).Err(err).Msg("ignoring unreadable token cache")
		token = nil
	}

	if token == nil {
		token, err = runConsoleFlow(ctx, cfg, opts, logger)
		if err != nil {
			return nil, err
		}
		if err := writeCachedToken(tokenFile, token); err != nil {
			return nil, err
		}
	}

	// ReuseTokenSource refreshes expired tokens transparently using the
	// refresh token stored in the cache.
	return oauth2.ReuseTokenSource(token, cfg.TokenSource(ctx, token)), nil
}

func loadClientSecrets(path string, scopes []string) (*oauth2.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.ConfigError(fmt.Sprintf("read OAuth client secrets: %s", path), err)
	}
	var secrets clientSecrets
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, domain.ConfigError("parse OAuth client secrets", err)
	}
	if secrets.Installed.ClientID == "" {
		return nil, domain.ConfigError("OAuth client secrets missing installed.client_id", nil)
	}

	redirect := oobRedirectURI
	if len(secrets.Installed.RedirectURIs) > 0 {
		redirect = secrets.Installed.RedirectURIs[0]
	}
	if len(scopes) == 0 {
		scopes = []string{ReadOnlyScope}
	}

	return &oauth2.Config{
		ClientID:     secrets.Installed.ClientID,
		ClientSecret: secrets.Installed.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  googleAuthURL,
			TokenURL: googleTokenURL,
		},
	}, nil
}

// runConsoleFlow walks the operator through the copy-paste authorization
// exchange. The pasted value may be the bare verification code or the full
// redirect URL.
func runConsoleFlow(ctx context.Context, cfg *oauth2.Config, opts OAuthOptions, logger *observability.Logger) (*oauth2.Token, error) {
	input := opts.Input
	if input == nil {
		input = os.Stdin
	}
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	authURL := cfg.AuthCodeURL("state-token",
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
	logger.Info().Msg("authorize Google Drive access by visiting the printed URL")
	fmt.Fprintf(output, "Authorize access by visiting:\n%s\n\n", authURL)
	fmt.Fprint(output, "Paste the verification code or redirected URL from Google: ")

	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		code, err := ExtractAuthCode(scanner.Text())
		if err != nil {
			fmt.Fprintf(output, "%v. Please try again: ", err)
			continue
		}
		token, err := cfg.Exchange(ctx, code)
		if err != nil {
			fmt.Fprintf(output, "Token exchange failed: %v. Please try again: ", err)
			continue
		}
		return token, nil
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.ConfigError("read authorization input", err)
	}
	return nil, domain.ConfigError("authorization input closed before a code was provided", nil)
}

// ExtractAuthCode returns the OAuth authorization code from direct input or
// a pasted redirect URL.
func ExtractAuthCode(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("missing authorization input")
	}

	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		parsed, err := url.Parse(value)
		if err != nil {
			return "", fmt.Errorf("redirect URL could not be parsed")
		}
		code := strings.TrimSpace(parsed.Query().Get("code"))
		if code == "" {
			return "", fmt.Errorf("redirect URL did not include an authorization code")
		}
		return code, nil
	}
	return value, nil
}

func readCachedToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func writeCachedToken(path string, token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.IOError("create token cache directory", err)
	}
	data, err := json.Marshal(token)
	if err != nil {
		return domain.IOError("encode token cache", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return domain.IOError("write token cache", err)
	}
	return nil
}
