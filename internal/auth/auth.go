// Package auth obtains an OAuth 2.0 authorized *http.Client for talking to
// the Calendar API, the way the teacher's benchmark readers obtain one for
// GCS: a token source wrapped in an oauth2.Transport, fed to
// option.WithHTTPClient. Unlike the teacher (which uses
// google.DefaultTokenSource, i.e. application-default or metadata-server
// credentials, since it expects to run on GCE), WhenFS runs on an
// operator's own machine against their own Calendar, so it uses the
// installed-application authorization-code flow: a client-secret JSON
// downloaded from Google Cloud Console and a token cached on disk next to
// it.
package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/lvkv/whenfs/common"
	"github.com/lvkv/whenfs/internal/logger"
)

// Scope is the single OAuth scope WhenFS requests: full read/write access
// to the user's calendars and events. Non-goals (§1) exclude any finer
// permission model, so one scope covers the entire filesystem.
const Scope = "https://www.googleapis.com/auth/calendar"

// Client builds an authorized *http.Client from a downloaded OAuth client
// secret file (secretPath). It looks for a cached refresh token in a file
// adjacent to the secret (same directory, name suffixed "-token.json"); if
// absent, it walks the user through the installed-app console flow once
// and caches the result for future mounts.
func Client(ctx context.Context, secretPath string) (*http.Client, error) {
	secretBytes, err := os.ReadFile(secretPath)
	if err != nil {
		return nil, fmt.Errorf("auth: reading client secret: %w", err)
	}

	config, err := google.ConfigFromJSON(secretBytes, Scope)
	if err != nil {
		return nil, fmt.Errorf("auth: parsing client secret: %w", err)
	}

	tokenPath := cachedTokenPath(secretPath)
	tok, err := loadToken(tokenPath)
	if err != nil {
		tok, err = authorizeFromConsole(config)
		if err != nil {
			return nil, fmt.Errorf("auth: authorization failed: %w", err)
		}
		if err := saveToken(tokenPath, tok); err != nil {
			logger.Warnf("auth: failed to cache token at %s: %v", tokenPath, err)
		}
	}

	return config.Client(ctx, tok), nil
}

func cachedTokenPath(secretPath string) string {
	dir := filepath.Dir(secretPath)
	base := filepath.Base(secretPath)
	ext := filepath.Ext(base)
	name := base[:len(base)-len(ext)]
	return filepath.Join(dir, name+"-token.json")
}

func loadToken(path string) (*oauth2.Token, error) {
	content, err := common.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tok := &oauth2.Token{}
	if err := json.Unmarshal(content, tok); err != nil {
		return nil, err
	}
	return tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	content, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return common.WriteFile(path, string(content))
}

// authorizeFromConsole prints the authorization URL and waits for the user
// to paste back the resulting code, the same console-based flow every
// installed-app OAuth example uses when there's no local redirect server
// to catch the callback.
func authorizeFromConsole(config *oauth2.Config) (*oauth2.Token, error) {
	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Printf("Go to the following link in your browser, then paste the authorization code:\n%s\n\n", authURL)

	var code string
	fmt.Print("Authorization code: ")
	if _, err := fmt.Scan(&code); err != nil {
		reader := bufio.NewReader(os.Stdin)
		line, readErr := reader.ReadString('\n')
		if readErr != nil {
			return nil, fmt.Errorf("reading authorization code: %w", err)
		}
		code = line
	}

	tok, err := config.Exchange(context.Background(), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}
