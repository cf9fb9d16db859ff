package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/tcriess/lightspeed-signal/globals"
	"github.com/tcriess/lightspeed-signal/peer"
	"github.com/tcriess/lightspeed-signal/room"
	"github.com/tcriess/lightspeed-signal/types"
)

// A simple CLI tool to create and inspect rooms of a lightspeed-signal relay and to take part in
// them from the terminal.

var (
	serverURL  string
	logLevel   string
	userName   string
	userId     string
	iceServers []string
)

func main() {
	var cmdCreate = &cobra.Command{
		Use:   "create [private|group]",
		Short: "Create a room",
		Long:  `create creates a new room of the given kind and prints its code.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := room.ParseKind(args[0])
			if err != nil {
				return err
			}
			res, err := peer.NewAPI(serverURL).CreateRoom(cmd.Context(), kind)
			if err != nil {
				return err
			}
			fmt.Println(res.RoomId)
			return nil
		},
	}
	var cmdShow = &cobra.Command{
		Use:   "show",
		Short: "Show rooms",
		Long:  `show is for printing room information.`,
	}
	var cmdShowRooms = &cobra.Command{
		Use:   "rooms",
		Short: "Show rooms",
		Long:  `show rooms lists all open rooms.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rooms, err := peer.NewAPI(serverURL).ListRooms(cmd.Context())
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Room", "Kind", "Users", "Created"})
			for _, r := range rooms {
				t.AppendRow(table.Row{r.RoomId, r.RoomKind, usage(r), r.CreatedAt.Local().Format(time.DateTime)})
			}
			t.AppendFooter(table.Row{"", "", len(rooms), ""})
			t.Render()
			return nil
		},
	}
	var cmdShowRoom = &cobra.Command{
		Use:   "room [room id]",
		Short: "Show room",
		Long:  `show room prints detail information about the room with the given id.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			check, err := peer.NewAPI(serverURL).CheckRoom(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendRow(table.Row{"Room", args[0]})
			t.AppendRow(table.Row{"Kind", check.Kind})
			t.AppendRow(table.Row{"Users", check.CurrentUsers})
			t.AppendRow(table.Row{"Capacity", check.MaxUsers})
			t.Render()
			return nil
		},
	}
	var cmdJoin = &cobra.Command{
		Use:   "join [room id]",
		Short: "Join a room",
		Long: `join enters the room with the given id. Received events are printed, every line read from STDIN is
sent as chat message. Lines starting with /direct are sent over the peer-to-peer data channels instead,
/leave leaves the room.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return join(cmd.Context(), args[0])
		},
	}

	var rootCmd = &cobra.Command{
		Use:           "lightspeed-signal-cli",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			globals.AppLogger.SetLevel(hclog.LevelFromString(logLevel))
		},
	}
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8000", "base url of the relay")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "WARN", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	cmdJoin.Flags().StringVarP(&userName, "name", "n", "", "display name (default: generated by the relay)")
	cmdJoin.Flags().StringVarP(&userId, "user", "u", "", "user id (default: random)")
	cmdJoin.Flags().StringSliceVar(&iceServers, "ice-server", nil, "STUN/TURN server url(s)")

	rootCmd.AddCommand(cmdCreate, cmdShow, cmdJoin)
	cmdShow.AddCommand(cmdShowRooms, cmdShowRoom)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func join(ctx context.Context, roomId string) error {
	logger := globals.AppLogger.Named("join")
	if userId == "" {
		userId = uuid.NewString()
	}
	client, err := peer.Dial(ctx, serverURL, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	factory := peer.NewPionFactory(iceServers, func(peerId string, data []byte) {
		fmt.Printf("[direct] %s: %s\n", peerId, data)
	}, logger)
	peers := peer.NewTable(factory, client, logger)
	defer peers.Close()

	if err := client.Join(roomId, userId, userName, room.KindAny); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			_ = client.Leave()
			return nil

		case line, ok := <-lines:
			if !ok || line == "/leave" {
				_ = client.Leave()
				return nil
			}
			if text, found := strings.CutPrefix(line, "/direct "); found {
				n := peers.SendAll([]byte(text))
				fmt.Printf("(sent directly to %d peer(s))\n", n)
				continue
			}
			if err := client.SendChat(line); err != nil {
				return err
			}

		case msg, ok := <-client.Events():
			if !ok {
				return fmt.Errorf("connection to %s lost", serverURL)
			}
			if err := printEvent(os.Stdout, msg, roomId, userId); err != nil {
				return err
			}
			if err := peers.Handle(msg); err != nil {
				logger.Warn("could not handle event", "event", msg.Event, "error", err)
			}
		}
	}
}

// usage renders the occupancy column of show rooms.
func usage(r types.RoomSummary) string {
	if r.Full {
		return fmt.Sprintf("%d/%d (full)", r.CurrentUsers, r.MaxUsers)
	}
	return fmt.Sprintf("%d/%d", r.CurrentUsers, r.MaxUsers)
}

// printEvent writes the human readable form of a server event to w. A room-error is returned as error.
func printEvent(w io.Writer, msg types.WebsocketMessage, roomId, userId string) error {
	switch msg.Event {
	case types.EventRoomUsers:
		var users []string
		if err := json.Unmarshal(msg.Data, &users); err != nil {
			return err
		}
		fmt.Fprintf(w, "joined %s as %s, %d other participant(s): %s\n", roomId, userId, len(users), strings.Join(users, ", "))

	case types.EventUserConnected:
		user := types.UserConnected{}
		if err := json.Unmarshal(msg.Data, &user); err != nil {
			return err
		}
		fmt.Fprintf(w, "* %s joined\n", user.UserName)

	case types.EventUserDisconnected:
		user := types.UserDisconnected{}
		if err := json.Unmarshal(msg.Data, &user); err != nil {
			return err
		}
		fmt.Fprintf(w, "* %s left\n", user.UserName)

	case types.EventReceiveMessage:
		chat := types.ReceiveMessage{}
		if err := json.Unmarshal(msg.Data, &chat); err != nil {
			return err
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", chat.Timestamp.Local().Format(time.TimeOnly), chat.UserName, chat.Message)

	case types.EventRoomError:
		roomError := types.RoomError{}
		if err := json.Unmarshal(msg.Data, &roomError); err != nil {
			return err
		}
		return fmt.Errorf("could not join %s: %s (%s)", roomId, roomError.Reason, roomError.Code)
	}
	return nil
}
