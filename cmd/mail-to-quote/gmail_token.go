package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmail "google.golang.org/api/gmail/v1"

	"mail-to-quote-go/internal/config"
)

var redirectURL string

// gmailTokenCmd runs the OAuth consent flow once and prints the refresh token
// used by the gmail inbox provider.
var gmailTokenCmd = &cobra.Command{
	Use:   "gmail-token",
	Short: "Obtain a Gmail OAuth2 refresh token",
	Example: `  GMAIL_CLIENT_ID=... GMAIL_CLIENT_SECRET=... mail-to-quote gmail-token`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if cfg.Inbox.ClientID == "" || cfg.Inbox.ClientSecret == "" {
			return errors.New("set GMAIL_CLIENT_ID and GMAIL_CLIENT_SECRET (or inbox.client_id / inbox.client_secret)")
		}

		oauthCfg := &oauth2.Config{
			ClientID:     cfg.Inbox.ClientID,
			ClientSecret: cfg.Inbox.ClientSecret,
			Scopes:       []string{gmail.GmailReadonlyScope},
			Endpoint:     google.Endpoint,
			RedirectURL:  redirectURL,
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Open this link in your browser:\n%s\n", oauthCfg.AuthCodeURL("mail-to-quote", oauth2.AccessTypeOffline))
		fmt.Fprint(out, "\nThen paste the 'code' parameter of the redirect URL: ")

		code, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && code == "" {
			return fmt.Errorf("failed to read authorization code: %w", err)
		}

		tok, err := oauthCfg.Exchange(cmd.Context(), strings.TrimSpace(code))
		if err != nil {
			return fmt.Errorf("unable to exchange authorization code: %w", err)
		}
		if tok.RefreshToken == "" {
			return errors.New("no refresh token returned; revoke the app's access and run again")
		}

		fmt.Fprintf(out, "\nexport GMAIL_REFRESH_TOKEN=%q\n", tok.RefreshToken)
		return nil
	},
}

func init() {
	gmailTokenCmd.Flags().StringVar(&redirectURL, "redirect-url", "http://localhost:8080/callback", "OAuth redirect URL registered for the client")
}
