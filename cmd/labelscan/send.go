package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// newSendCommand sends one intent over the station's command channel and
// waits for its terminal report. Handy for scripting and bench testing
// without the operator console.
func newSendCommand(configFlag *string) *cobra.Command {
	var server string
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "send <intent> [args]",
		Short: "Send a command-channel intent and print the report",
		Long: `Send one intent to the running station:

  send capture
  send focus
  send zoom <x> <y>       fractional preview coordinates, e.g. 0.3 0.7
  send reset_zoom
  send quality <mode>     standard | best-of-3 | bracketed
  send lighting <mode>    off | white | uv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := buildIntent(args)
			if err != nil {
				return err
			}

			base, err := apiBase(configFlag, server)
			if err != nil {
				return err
			}
			url := "ws" + base[len("http"):] + "/ws"

			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				return fmt.Errorf("connect to %s: %w", url, err)
			}
			defer conn.Close()

			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}

			conn.SetReadDeadline(time.Now().Add(wait))
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return fmt.Errorf("no report within %s: %w", wait, err)
				}
				var event struct {
					Type    string          `json:"type"`
					Payload json.RawMessage `json:"payload"`
				}
				if err := json.Unmarshal(data, &event); err != nil || event.Type != "report" {
					continue
				}
				fmt.Println(string(event.Payload))
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "station address (host:port)")
	cmd.Flags().DurationVar(&wait, "wait", 90*time.Second, "how long to wait for the report")
	return cmd
}

func buildIntent(args []string) ([]byte, error) {
	in := map[string]any{}
	switch args[0] {
	case "capture", "focus", "reset_zoom":
		in["intent"] = args[0]
	case "zoom":
		if len(args) != 3 {
			return nil, fmt.Errorf("zoom needs fractional x and y")
		}
		x, errX := strconv.ParseFloat(args[1], 64)
		y, errY := strconv.ParseFloat(args[2], 64)
		if errX != nil || errY != nil {
			return nil, fmt.Errorf("zoom coordinates must be numbers")
		}
		in["intent"], in["x"], in["y"] = "zoom_to", x, y
	case "quality":
		if len(args) != 2 {
			return nil, fmt.Errorf("quality needs a mode name")
		}
		in["intent"], in["mode"] = "quality_mode", args[1]
	case "lighting":
		if len(args) != 2 {
			return nil, fmt.Errorf("lighting needs a mode name")
		}
		in["intent"], in["mode"] = "lighting", args[1]
	default:
		return nil, fmt.Errorf("unknown intent %q", args[0])
	}
	return json.Marshal(in)
}
