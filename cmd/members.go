package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/BioHazard786/huddle/internal/config"
	"github.com/BioHazard786/huddle/internal/server"
	"github.com/BioHazard786/huddle/internal/ui"
	"github.com/spf13/cobra"
)

var flagAPI string

var errRoomNotFound = errors.New("room not found")

var membersCmd = &cobra.Command{
	Use:   "members <room>",
	Short: "List who is in a room",
	Long: `Ask the relay who is currently in a room.

Examples:
  huddle members kitten-waffle-stardust-happy
  huddle members --api http://localhost:8080 my-room`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := LoadConfig(config.Options{Domain: flagDomain, Token: flagToken})
		if err != nil {
			return err
		}
		base := flagAPI
		if base == "" {
			base = cfg.APIURL()
		}

		stop := ui.NewConnectionSpinner("Asking the relay...")
		stop.Start()
		members, err := fetchMembers(cmd.Context(), base, args[0], cfg.Token)
		stop.Stop()
		if errors.Is(err, errRoomNotFound) {
			ui.PrintInfof("Nobody is in %s", args[0])
			return nil
		}
		if err != nil {
			return err
		}

		ui.RenderMembers(os.Stdout, args[0], members)
		return nil
	},
}

func fetchMembers(ctx context.Context, base, roomID, token string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	endpoint := strings.TrimRight(base, "/") + "/api/rooms/" + url.PathEscape(roomID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query relay: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, errRoomNotFound
	default:
		return nil, fmt.Errorf("query relay: unexpected status %s", resp.Status)
	}

	var body server.RoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return body.Members, nil
}

func init() {
	membersCmd.Flags().StringVarP(&flagDomain, "domain", "d", "", "Relay server domain (default: "+config.DefaultDomain+")")
	membersCmd.Flags().StringVar(&flagAPI, "api", "", "Relay HTTP base URL, overrides --domain")
	membersCmd.Flags().StringVar(&flagToken, "token", "", "Relay access token")

	rootCmd.AddCommand(membersCmd)
}
