package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/vango-dev/textcanvas/internal/config"
	"github.com/vango-dev/textcanvas/internal/discovery"
	"github.com/vango-dev/textcanvas/internal/errors"
	"github.com/vango-dev/textcanvas/pkg/protocol"
)

type watchOptions struct {
	render bool
	count  int
}

func watchCmd(g *globalFlags) *cobra.Command {
	var (
		opts     watchOptions
		discover bool
	)

	cmd := &cobra.Command{
		Use:   "watch [url]",
		Short: "Print canvas updates as they arrive",
		Long: `Connect to a canvas server and print every update it sends.

Without --render each changed cell is printed as "x,y char"; erased
cells print as "x,y <erased>". With --render the whole known canvas
is redrawn after every update.

Examples:
  textcanvas watch
  textcanvas watch ws://10.0.0.5:10500/ws --render
  textcanvas watch --discover`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			url, err := g.targetURL(ctx, args, discover)
			if err != nil {
				return err
			}
			return runWatch(ctx, url, cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.render, "render", "r", false, "Redraw the whole canvas after each update")
	cmd.Flags().IntVarP(&opts.count, "count", "n", 0, "Exit after this many updates (0 = run until interrupted)")
	cmd.Flags().BoolVar(&discover, "discover", false, "Connect to the first server found over mDNS")

	return cmd
}

// targetURL picks the server URL from the argument, mDNS, or the local
// config, in that order.
func (g *globalFlags) targetURL(ctx context.Context, args []string, discover bool) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if discover {
		browseCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		peers, err := discovery.Browse(browseCtx)
		if err != nil {
			return "", errors.New("E150").Wrap(err)
		}
		if len(peers) == 0 {
			return "", errors.New("E150").WithDetail("no canvas servers found")
		}
		return peers[0].URL(), nil
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return "", err
	}
	return localURL(cfg), nil
}

// localURL is the URL of a server started from cfg on this machine.
func localURL(cfg *config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("ws://%s:%d%s", host, cfg.Server.Port, protocol.Path)
}

func dialCanvas(ctx context.Context, url string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.New("E102").WithDetail(url).Wrap(err)
	}
	return conn, nil
}

func runWatch(ctx context.Context, url string, out io.Writer, opts watchOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, err := dialCanvas(ctx, url)
	if err != nil {
		return err
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	grid := protocol.Grid{}
	for n := 0; opts.count == 0 || n < opts.count; n++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("E102").WithDetail("connection lost").Wrap(err)
		}

		update, err := decodeUpdate(data)
		if err != nil {
			errorMsg("%s", errors.FromError(err, "E112").FormatCompact())
			continue
		}
		merge(grid, update.Data)

		if opts.render {
			fmt.Fprintln(out, strings.Repeat("─", 20))
			fmt.Fprint(out, render(grid))
		} else {
			printCells(out, update.Data)
		}
	}
	return nil
}

// decodeUpdate parses one server message.
func decodeUpdate(data []byte) (*protocol.UpdateMessage, error) {
	var msg protocol.UpdateMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.New("E112").Wrap(err)
	}
	if msg.Type != protocol.MessageTypeUpdate {
		return nil, errors.New("E112").WithDetail("type " + msg.Type)
	}
	if msg.Data == nil {
		msg.Data = protocol.Grid{}
	}
	return &msg, nil
}

// merge applies an update to the locally known grid.
func merge(dst, src protocol.Grid) {
	for y, row := range src {
		for x, c := range row {
			dst.Set(x, y, c)
		}
	}
}

type cellPos struct{ x, y int }

func sortedCells(g protocol.Grid) []cellPos {
	var cells []cellPos
	for y, row := range g {
		for x := range row {
			cells = append(cells, cellPos{x, y})
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].y != cells[j].y {
			return cells[i].y < cells[j].y
		}
		return cells[i].x < cells[j].x
	})
	return cells
}

func printCells(out io.Writer, g protocol.Grid) {
	for _, p := range sortedCells(g) {
		c, _ := g.Get(p.x, p.y)
		if c == nil {
			fmt.Fprintf(out, "%d,%d <erased>\n", p.x, p.y)
			continue
		}
		fmt.Fprintf(out, "%d,%d %s\n", p.x, p.y, *c)
	}
}

// render draws the bounding box of the set cells, one line per row.
// Unset and erased cells are spaces; trailing spaces are trimmed.
func render(g protocol.Grid) string {
	var set []cellPos
	for _, p := range sortedCells(g) {
		if c, _ := g.Get(p.x, p.y); c != nil {
			set = append(set, p)
		}
	}
	if len(set) == 0 {
		return ""
	}

	minX, maxX := set[0].x, set[0].x
	minY, maxY := set[0].y, set[len(set)-1].y
	for _, p := range set {
		minX = min(minX, p.x)
		maxX = max(maxX, p.x)
	}

	var sb strings.Builder
	for y := minY; y <= maxY; y++ {
		var line strings.Builder
		for x := minX; x <= maxX; x++ {
			if c, _ := g.Get(x, y); c != nil {
				line.WriteString(*c)
			} else {
				line.WriteByte(' ')
			}
		}
		sb.WriteString(strings.TrimRight(line.String(), " "))
		sb.WriteByte('\n')
	}
	return sb.String()
}
