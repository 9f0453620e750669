package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/textcanvas/internal/errors"
	"github.com/vango-dev/textcanvas/pkg/protocol"
)

func putCmd(g *globalFlags) *cobra.Command {
	var (
		url   string
		erase bool
		wait  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "put X Y [CHAR]",
		Short: "Write, erase, or point at one cell",
		Long: `Connect to a canvas server and send a single message.

With CHAR the cell at (X, Y) is written; with --erase it is cleared;
with neither only the cursor moves.

Examples:
  textcanvas put 3 1 h
  textcanvas put 3 1 --erase
  textcanvas put 0 0 --url ws://10.0.0.5:10500/ws`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := parsePut(args, erase)
			if err != nil {
				return err
			}

			target := url
			if target == "" {
				if target, err = g.targetURL(cmd.Context(), nil, false); err != nil {
					return err
				}
			}
			if err := runPut(cmd.Context(), target, msg, wait); err != nil {
				return err
			}
			success("Sent %s", mustJSON(msg))
			return nil
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "Server URL (default from config)")
	cmd.Flags().BoolVar(&erase, "erase", false, "Erase the cell")
	cmd.Flags().DurationVar(&wait, "wait", time.Second, "How long to wait for the server to apply the message")

	return cmd
}

func parsePut(args []string, erase bool) (protocol.ClientMessage, error) {
	var msg protocol.ClientMessage
	x, err := strconv.Atoi(args[0])
	if err != nil {
		return msg, errors.Newf(errors.CategoryCLI, "invalid X %q", args[0])
	}
	y, err := strconv.Atoi(args[1])
	if err != nil {
		return msg, errors.Newf(errors.CategoryCLI, "invalid Y %q", args[1])
	}
	msg.X, msg.Y = x, y

	switch {
	case len(args) == 3 && erase:
		return msg, errors.Newf(errors.CategoryCLI, "CHAR and --erase are mutually exclusive")
	case len(args) == 3:
		c := args[2]
		msg.C, msg.HasC = &c, true
	case erase:
		msg.HasC = true
	}
	return msg, nil
}

// runPut sends msg and keeps the connection open until the change comes
// back in an update or wait elapses, so the server reads the frame
// before the socket closes.
func runPut(ctx context.Context, url string, msg protocol.ClientMessage, wait time.Duration) error {
	conn, err := dialCanvas(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wait))
	if _, _, err := conn.ReadMessage(); err != nil {
		return errors.New("E102").WithDetail("no initial update").Wrap(err)
	}

	if err := conn.WriteJSON(msg); err != nil {
		return errors.New("E102").Wrap(err)
	}

	deadline := time.Now().Add(wait)
	conn.SetReadDeadline(deadline)
	for msg.HasC && time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		update, err := decodeUpdate(data)
		if err != nil {
			continue
		}
		if c, ok := update.Data.Get(msg.X, msg.Y); ok && sameChar(c, msg.C) {
			return nil
		}
	}
	if !msg.HasC {
		time.Sleep(wait)
	}
	return nil
}

func sameChar(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
