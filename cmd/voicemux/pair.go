package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	voicemux "github.com/voicemux/voicemux-go-bridge"
	"github.com/voicemux/voicemux-go-bridge/codec"
	"github.com/voicemux/voicemux-go-bridge/credstore"
)

func pairCmd() *cobra.Command {
	var (
		dbPath  string
		token   string
		roomID  string
		key     string
		fromURL string
	)

	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Store pairing credentials",
		Long: `Stores the relay token, room id, and symmetric key, either from flags
or parsed out of a pasted pairing URL. A running daemon picks the
change up and reconnects immediately.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromURL != "" {
				var err error
				token, roomID, key, err = parsePairingURL(fromURL)
				if err != nil {
					return err
				}
			}
			if token == "" || roomID == "" {
				return fmt.Errorf("token and room id are required (use --token/--room or --url)")
			}

			store, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			creds := credstore.Credentials{Token: token, RoomID: roomID, Key: key}
			if err := store.Set(creds); err != nil {
				return err
			}
			fmt.Printf("Paired to room %s (key hint %s)\n", roomID, creds.KeyHint())
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", envOr("VOICEMUX_DB", ""), "credential database path")
	cmd.Flags().StringVar(&token, "token", "", "relay bearer token")
	cmd.Flags().StringVar(&roomID, "room", "", "room id (UUID)")
	cmd.Flags().StringVar(&key, "key", "", "Base64 AES-256 key")
	cmd.Flags().StringVar(&fromURL, "url", "", "pairing URL to parse instead of individual flags")

	return cmd
}

// parsePairingURL extracts credentials from a hub pairing link of the
// form https://hub/{room}/zen?token=..&uuid=..#key=...
func parsePairingURL(raw string) (token, roomID, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", "", fmt.Errorf("invalid pairing URL: %w", err)
	}
	q := u.Query()
	token = q.Get("token")
	roomID = q.Get("uuid")
	if roomID == "" {
		// Fall back to the path segment before /zen.
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 {
			roomID = parts[0]
		}
	}
	if frag := u.Fragment; strings.HasPrefix(frag, "key=") {
		key = codec.Normalize(strings.TrimPrefix(frag, "key="))
	}
	if token == "" || roomID == "" {
		return "", "", "", fmt.Errorf("pairing URL missing token or room id")
	}
	return token, roomID, key, nil
}

func statusCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored pairing state",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			creds, err := store.Get()
			if err != nil {
				return err
			}
			if !creds.Complete() {
				fmt.Println("Not paired (awaiting credentials)")
				if creds.Key != "" {
					fmt.Printf("Key present (hint %s)\n", creds.KeyHint())
				}
				return nil
			}
			fmt.Printf("Room:     %s\n", creds.RoomID)
			fmt.Printf("Key hint: %s\n", creds.KeyHint())
			hub := envOr("VOICEMUX_HUB_URL", "https://hub.knc.jp")
			fmt.Printf("Pairing:  %s\n", voicemux.PairingURL(hub, creds))
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", envOr("VOICEMUX_DB", ""), "credential database path")
	return cmd
}

func resetCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(dbPath)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Println("Credentials cleared")
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", envOr("VOICEMUX_DB", ""), "credential database path")
	return cmd
}
