package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pterm/pterm"

	"github.com/1ureka/quickscreen/internal/capture"
	"github.com/1ureka/quickscreen/internal/config"
	"github.com/1ureka/quickscreen/internal/control"
	"github.com/1ureka/quickscreen/internal/protocol"
	"github.com/1ureka/quickscreen/internal/session"
	"github.com/1ureka/quickscreen/internal/util"
)

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive asks for the role and its parameters when no subcommand is given.
func runInteractive(ctx context.Context, debug bool) error {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Host  — Share this screen",
			"Join  — Watch a host",
			"Admin — Decide admissions for a remote host",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	switch {
	case strings.HasPrefix(role, "Host"):
		port := askPort("UDP port to host on (1 ~ 65535)")
		cfg, err := loadConfig(config.RoleHost, config.Options{Port: port, Debug: debug})
		if err != nil {
			return err
		}
		return runHost(ctx, cfg)

	case strings.HasPrefix(role, "Join"):
		host := askText("Host address (e.g. 192.168.1.20)")
		port := askPort("Host UDP port (1 ~ 65535)")
		cfg, err := loadConfig(config.RolePeer, config.Options{Host: host, Port: port, Debug: debug})
		if err != nil {
			return err
		}
		return runJoin(ctx, cfg)

	default:
		wsURL := askControlURL()
		return runAdmin(ctx, wsURL)
	}
}

// runHost streams the test pattern and resolves admissions either at this
// terminal or through the control server.
func runHost(ctx context.Context, cfg *config.Config) error {
	src := capture.NewPattern(cfg.Width, cfg.Height, cfg.FPS)
	host := session.NewHost(session.HostConfig{Port: cfg.Port}, src)

	if err := host.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hosting: %w", err)
	}

	util.StartStatsReporter(ctx, config.DefaultStatsInterval)
	util.LogSuccess("hosting on %v — %dx%d @ %d fps, %d bytes per frame",
		host.Addr(), cfg.Width, cfg.Height, cfg.FPS, src.FrameSize())

	if cfg.ControlAddr != "" {
		return serveControl(ctx, cfg.ControlAddr, host)
	}

	for ev := range host.Events() {
		switch ev.Kind {
		case session.EventJoinRequested:
			if confirm(fmt.Sprintf("Client %s wants to join. Accept?", ev.ID)) {
				host.Accept(ev.ID)
			} else {
				host.Refuse(ev.ID)
			}
		case session.EventClientLeft:
			util.LogInfo("client %s left", ev.ID)
		}
	}

	<-host.Done()
	util.LogInfo("hosting stopped")
	return nil
}

// serveControl hands admission decisions to a remote controller.
func serveControl(ctx context.Context, addr string, host *session.Host) error {
	srv := control.NewServer(control.GeneratePIN(4))
	port, err := srv.Start(addr)
	if err != nil {
		host.Stop()
		<-host.Done()
		return err
	}

	pterm.DefaultBox.WithTitle("Control Server").Println(
		fmt.Sprintf("Port : %d\nPIN  : %s\n\nquickscreen admin --url ws://<this-host>:%d --pin %s",
			port, srv.PIN(), port, srv.PIN()))
	util.LogInfo("waiting for a controller...")

	err = srv.Serve(ctx, host)
	host.Stop()
	<-host.Done()

	if ctx.Err() != nil {
		return nil
	}
	return err
}

// runJoin joins a host and reports what arrives.
func runJoin(ctx context.Context, cfg *config.Config) error {
	peer := session.NewPeer(session.PeerConfig{
		HostAddr:  cfg.HostAddr(),
		LocalPort: cfg.LocalPort,
		ClientID:  protocol.ClientID(cfg.ClientID),
	})

	if err := peer.Start(ctx); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	util.StartStatsReporter(ctx, config.DefaultStatsInterval)
	util.LogInfo("waiting for %s to admit client %s...", cfg.HostAddr(), peer.ID())

	for ev := range peer.Events() {
		switch ev.Kind {
		case session.EventJoinResponse:
			if ev.Accepted {
				util.LogSuccess("admitted — receiving frames")
			} else {
				util.LogWarning("the host refused to admit this client")
			}
		case session.EventFrameReady:
			util.LogDebug("frame of %d bytes", len(ev.Payload))
		}
	}

	<-peer.Done()
	return nil
}

// runAdmin decides admissions for a remote host through its control server.
func runAdmin(ctx context.Context, wsURL string) error {
	client, err := control.Connect(ctx, wsURL)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		client.Close()
	}()

	util.LogSuccess("connected to %s", redactPIN(wsURL))

	for {
		ev, err := client.Receive()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				util.LogInfo("control connection closed")
				return nil
			}
			return fmt.Errorf("control connection failed: %w", err)
		}

		switch ev.Kind {
		case session.EventJoinRequested:
			kind := session.CmdRefuse
			if confirm(fmt.Sprintf("Client %s wants to join. Accept?", ev.ID)) {
				kind = session.CmdAccept
			}
			if err := client.Send(session.Command{Kind: kind, ID: ev.ID}); err != nil {
				return fmt.Errorf("failed to send %v: %w", kind, err)
			}
		case session.EventClientLeft:
			util.LogInfo("client %s left", ev.ID)
		}
	}
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeControlURL validates a raw control server address and attaches the PIN.
func normalizeControlURL(raw, pin string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid control URL: %s", raw)
	}
	if host, port, err := net.SplitHostPort(u.Host); err != nil || host == "" || port == "" {
		return "", fmt.Errorf("control URL needs a host and a port: %s", raw)
	}

	scheme := "ws"
	if u.Scheme == "ws" || u.Scheme == "wss" {
		scheme = u.Scheme
	}

	pin = strings.TrimSpace(pin)
	if pin == "" {
		return "", errors.New("missing PIN")
	}

	q := url.Values{"pin": []string{pin}}
	return fmt.Sprintf("%s://%s/ws?%s", scheme, u.Host, q.Encode()), nil
}

// redactPIN hides the PIN of a control URL for logging.
func redactPIN(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return wsURL
	}
	u.RawQuery = ""
	return u.String()
}

// confirm asks a yes/no question, defaulting to no.
func confirm(question string) bool {
	ok, _ := pterm.DefaultInteractiveConfirm.
		WithDefaultText(question).
		WithDefaultValue(false).
		Show()
	pterm.Println()
	return ok
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askText prompts until a non-empty answer is entered.
func askText(prompt string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}
		pterm.Println()
	}
}

// askControlURL prompts for a control server address and PIN until both are valid.
func askControlURL() string {
	for {
		raw := askText("Control server (e.g. ws://192.168.1.20:7300)")
		pin := askText("PIN")

		wsURL, err := normalizeControlURL(raw, pin)
		if err == nil {
			return wsURL
		}

		util.LogWarning("invalid input: %v", err)
		pterm.Println()
	}
}
