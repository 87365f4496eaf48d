package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/relaychat/internal/config"
	"github.com/soyeahso/relaychat/internal/version"
)

func newStatusCmd() *cobra.Command {
	var probeURL string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show relaychat status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "relaychat %s (commit %s)\n\n", version.Version, version.Commit)

			fmt.Fprintf(out, "Config:   %s\n", paths.Config)
			fmt.Fprintf(out, "Data:     %s\n", paths.Data)
			fmt.Fprintf(out, "Logs:     %s\n", paths.Logs)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:   error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(out, "Gateway:  port=%d bind=%s origins=%s\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, orNone(strings.Join(cfg.Gateway.AllowedOrigins, ",")))
			fmt.Fprintf(out, "Provider: phone=%s owner=%s token=%s signed=%v\n",
				orNone(cfg.Provider.PhoneNumberID), orNone(cfg.Provider.OwnerNumber),
				mask(cfg.Provider.AccessToken), cfg.Provider.AppSecret != "")
			fmt.Fprintf(out, "Session:  idle=%s keepalive=%s window=%s retention=%s\n",
				cfg.Session.IdleAfter(), cfg.Session.KeepaliveAfter(), cfg.Session.Window(), cfg.Session.Retention())
			fmt.Fprintf(out, "Journal:  %s\n", redactDSN(cfg.Journal.DSN))

			issues := config.Validate(&cfg)
			if len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			if probeURL == "" {
				probeURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Gateway.Port)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, probeHealth(probeURL))
			return nil
		},
	}

	cmd.Flags().StringVar(&probeURL, "url", "", "base URL of a running relay (default http://127.0.0.1:<port>)")
	return cmd
}

// probeHealth queries GET /health on a running relay.
func probeHealth(base string) string {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(strings.TrimRight(base, "/") + "/health")
	if err != nil {
		return "Server:   not reachable at " + base
	}
	defer resp.Body.Close()

	var h struct {
		Status   string `json:"status"`
		Sessions int    `json:"sessions"`
		Clients  int    `json:"clients"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK || json.Unmarshal(body, &h) != nil {
		return fmt.Sprintf("Server:   unexpected response from %s (%d)", base, resp.StatusCode)
	}
	return fmt.Sprintf("Server:   %s sessions=%d clients=%d", h.Status, h.Sessions, h.Clients)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// mask hides all but the last four characters of a secret.
func mask(s string) string {
	switch {
	case s == "":
		return "(unset)"
	case len(s) <= 4:
		return "****"
	default:
		return "****" + s[len(s)-4:]
	}
}

// redactDSN strips credentials from a journal DSN.
func redactDSN(dsn string) string {
	if dsn == "" {
		return "disabled"
	}
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	return u.Redacted()
}
