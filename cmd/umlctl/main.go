// Command umlctl exports diagrams, talks to live rooms and drives the
// diagram assistant from a terminal.
package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/umlstudio/engine/internal/realtime"
	"github.com/umlstudio/engine/pkg/config"
	"github.com/umlstudio/engine/pkg/logger"
)

var (
	syncURL   string
	aiURL     string
	userID    string
	userName  string
	token     string
	logLevel  string
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "umlctl",
	Short: "Command line client for UML Studio",
	Long: `umlctl exports UML class diagrams to Mermaid, PNG and backend JSON,
pushes diagrams into live rooms, follows rooms as they change and asks the
diagram assistant to generate new diagrams.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := logger.Init(logLevel, "console"); err != nil {
			return err
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func init() {
	c, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	appConfig = c

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&syncURL, "sync-url", c.SyncURL, "websocket URL of the room server")
	pf.StringVar(&aiURL, "ai-url", c.AIBaseURL, "base URL of the diagram assistant")
	pf.StringVar(&userID, "user", "", "user id announced to rooms (default: guest)")
	pf.StringVar(&userName, "name", "", "display name announced to rooms")
	pf.StringVar(&token, "token", os.Getenv("UMLCTL_TOKEN"), "bearer token for the server")
	pf.StringVar(&logLevel, "log-level", "warn", "log level")
}

// identity is the user this invocation acts as.
func identity() realtime.UserInfo {
	u := realtime.UserInfo{UserID: userID, UserName: userName}
	if u.UserID == "" {
		u.UserID = "umlctl"
	}
	if u.UserName == "" {
		u.UserName = u.UserID
	}
	return u
}

func channel() *realtime.WSChannel {
	var opts []realtime.WSOption
	if token != "" {
		opts = append(opts, realtime.WithHeader(http.Header{"Authorization": []string{"Bearer " + token}}))
	}
	u := identity()
	q := url.Values{"userId": {u.UserID}, "userName": {u.UserName}}
	return realtime.NewWSChannel(syncURL+"?"+q.Encode(), opts...)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	logger.Sync()
}
