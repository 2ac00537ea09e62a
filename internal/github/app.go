package github

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

// AppCredentials identify a GitHub App installation.
type AppCredentials struct {
	AppID          int64
	InstallationID int64
	// PrivateKey is the PEM content. If empty, PrivateKeyFile is read.
	PrivateKey     []byte
	PrivateKeyFile string
}

// AppCredentialsFromEnv reads GH_APP_ID, GH_APP_INSTALLATION_ID and
// GH_APP_KEY (PEM content or a path to it). It returns nil when GH_APP_ID is
// unset.
func AppCredentialsFromEnv() (*AppCredentials, error) {
	rawID := strings.TrimSpace(os.Getenv("GH_APP_ID"))
	if rawID == "" {
		return nil, nil
	}
	appID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GH_APP_ID %q", rawID)
	}
	rawInst := strings.TrimSpace(os.Getenv("GH_APP_INSTALLATION_ID"))
	instID, err := strconv.ParseInt(rawInst, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GH_APP_INSTALLATION_ID %q", rawInst)
	}

	key := os.Getenv("GH_APP_KEY")
	creds := &AppCredentials{AppID: appID, InstallationID: instID}
	if strings.Contains(key, "-----BEGIN") {
		creds.PrivateKey = []byte(key)
	} else {
		creds.PrivateKeyFile = strings.TrimSpace(key)
	}
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	return creds, nil
}

func (c *AppCredentials) Validate() error {
	if c.AppID <= 0 {
		return errors.New("github app: app id is required")
	}
	if c.InstallationID <= 0 {
		return errors.New("github app: installation id is required")
	}
	if len(c.PrivateKey) == 0 && c.PrivateKeyFile == "" {
		return errors.New("github app: private key is required (GH_APP_KEY)")
	}
	return nil
}

func newAppTransport(base http.RoundTripper, creds *AppCredentials, apiURL *url.URL) (http.RoundTripper, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	var (
		itr *ghinstallation.Transport
		err error
	)
	if len(creds.PrivateKey) > 0 {
		itr, err = ghinstallation.New(base, creds.AppID, creds.InstallationID, creds.PrivateKey)
	} else {
		itr, err = ghinstallation.NewKeyFromFile(base, creds.AppID, creds.InstallationID, creds.PrivateKeyFile)
	}
	if err != nil {
		return nil, fmt.Errorf("github app: %w", err)
	}
	if apiURL != nil {
		itr.BaseURL = strings.TrimSuffix(apiURL.String(), "/")
	}
	return itr, nil
}
