// Command client is a headless canvas client. It joins a channel, keeps a
// reconciled copy of the scene and reads drawing commands from stdin:
//
//	pen x1 y1 x2 y2 ...       freehand stroke through the points
//	rectangle|square|circle|triangle x1 y1 x2 y2
//	erase x y [x y ...]       eraser samples
//	text x y words...
//	say words...              chat line
//	clear | save NAME | list
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Tyrowin/collabocanvas/internal/auth"
	"github.com/Tyrowin/collabocanvas/internal/client"
	"github.com/Tyrowin/collabocanvas/internal/log"
	"github.com/Tyrowin/collabocanvas/internal/protocol"
	"github.com/Tyrowin/collabocanvas/internal/shape"
)

// logSurface reports each redraw instead of painting pixels.
type logSurface struct {
	shapes  int
	preview bool
}

func (s *logSurface) Clear()                  { s.shapes, s.preview = 0, false }
func (s *logSurface) Draw(shape.Shape)        { s.shapes++ }
func (s *logSurface) DrawPreview(shape.Shape) { s.preview = true }

func main() {
	addr := flag.String("addr", "localhost:7777", "canvas channel address")
	name := flag.String("name", "", "display name sent in the handshake (required unless -handshake=false)")
	handshake := flag.Bool("handshake", true, "send the display name line; disable only for servers with the handshake off")
	authAddr := flag.String("auth", "", "auth address; when set, log in (or register with -email) first")
	email := flag.String("email", "", "register a new account with this email")
	password := flag.String("password", "", "account password")
	level := flag.String("log", "info", "log level")
	flag.Parse()

	log.Init(*level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *handshake && strings.TrimSpace(*name) == "" {
		fmt.Fprintln(os.Stderr, "client: -name is required")
		flag.Usage()
		os.Exit(2)
	}

	if *authAddr != "" {
		if err := authenticate(ctx, *authAddr, *name, *email, *password); err != nil {
			log.Error("authentication failed", "err", err)
			os.Exit(1)
		}
	}

	if err := run(ctx, *addr, *name, *handshake); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("client stopped with error", "err", err)
		os.Exit(1)
	}
}

func authenticate(ctx context.Context, addr, name, email, password string) error {
	req := auth.Request{Action: auth.ActionLogin, Username: name, Password: password}
	if email != "" {
		req.Action = auth.ActionRegister
		req.Email = email
	}
	status, err := auth.Authenticate(ctx, addr, req)
	if err != nil {
		return err
	}
	if status != auth.StatusOK {
		return fmt.Errorf("%s rejected: %s", strings.ToLower(req.Action), status)
	}
	log.Info("authenticated", "user", name, "action", req.Action)
	return nil
}

func run(ctx context.Context, addr, name string, handshake bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := []client.DialOption{client.WithReconnectHook(func(err error) {
		log.Warn("connection ended", "addr", addr, "err", err)
		cancel()
	})}
	if !handshake {
		opts = append(opts, client.WithoutHandshake())
	}
	conn, err := client.Dial(ctx, addr, name, opts...)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("connected", "addr", addr, "name", name)

	surface := &logSurface{}
	rec := client.New(surface,
		client.WithSender(conn),
		client.WithObserver(client.ObserverFunc(observe)),
	)
	loop := client.NewLoop(64)

	go func() {
		if err := client.Pump(ctx, conn, loop, rec); err != nil {
			log.Warn("receive loop stopped", "err", err)
		}
		cancel()
	}()
	go readCommands(ctx, loop, rec, conn, surface)

	return loop.Run(ctx)
}

func observe(ev protocol.Event) {
	switch e := ev.(type) {
	case protocol.ChatMessage:
		log.Info("chat", "from", e.Username, "text", e.Text)
	case protocol.UserJoined:
		log.Info("user joined", "user", e.Username)
	case protocol.UserLeft:
		log.Info("user left", "user", e.Username)
	case protocol.SaveStatus:
		log.Info("save status", "status", e.Status, "message", e.Message)
	}
}

func readCommands(ctx context.Context, loop *client.Loop, rec *client.Reconciler, chat client.Sender, surface *logSurface) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		err := loop.Post(ctx, func() {
			if err := execute(rec, chat, line); err != nil {
				log.Warn("command failed", "command", line, "err", err)
				return
			}
			log.Info("scene", "shapes", surface.shapes, "preview", surface.preview, "tool", rec.Tool())
		})
		if err != nil {
			return
		}
	}
}

func execute(rec *client.Reconciler, chat client.Sender, line string) error {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "clear":
		rec.Clear()
		return nil
	case "save":
		if len(args) != 1 {
			return errors.New("usage: save NAME")
		}
		return rec.Save(args[0])
	case "list":
		for i, s := range rec.History() {
			log.Info("shape", "index", i, "shape", s.String())
		}
		return nil
	case "say":
		return chat.Send(protocol.ChatMessage{Text: strings.Join(args, " ")})
	case "text":
		if len(args) < 3 {
			return errors.New("usage: text X Y WORDS")
		}
		pts, err := points(args[:2])
		if err != nil {
			return err
		}
		rec.SetTool(client.ToolText)
		return rec.Click(pts[0], strings.Join(args[2:], " "))
	case "erase":
		pts, err := points(args)
		if err != nil || len(pts) == 0 {
			return errors.New("usage: erase X Y [X Y ...]")
		}
		rec.SetTool(client.ToolEraser)
		return gesture(rec, pts)
	}

	tool, err := client.ParseTool(cmd)
	if err != nil {
		return err
	}
	pts, err := points(args)
	if err != nil || len(pts) < 2 {
		return fmt.Errorf("usage: %s X1 Y1 X2 Y2 ...", cmd)
	}
	rec.SetTool(tool)
	return gesture(rec, pts)
}

func gesture(rec *client.Reconciler, pts []shape.Point) error {
	rec.Press(pts[0])
	for i := 1; i < len(pts)-1; i++ {
		if err := rec.Drag(pts[i]); err != nil {
			return err
		}
	}
	return rec.Release(pts[len(pts)-1])
}

func points(args []string) ([]shape.Point, error) {
	if len(args)%2 != 0 {
		return nil, errors.New("coordinates come in pairs")
	}
	pts := make([]shape.Point, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		x, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, err
		}
		y, err := strconv.ParseFloat(args[i+1], 64)
		if err != nil {
			return nil, err
		}
		pts = append(pts, shape.Point{X: x, Y: y})
	}
	return pts, nil
}
