// Package main is a terminal console tail for a StellarStack server. It
// logs into the panel, fetches a console token, opens a telemetry
// session straight to the node daemon, and streams console output with
// a periodic stats line. Lines typed on stdin are forwarded as server
// commands.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dcm2610/StellarStack-sub002/internal/telemetry"
	"github.com/dcm2610/StellarStack-sub002/pkg/logger"
)

const statsInterval = 10 * time.Second

func main() {
	panelURL := flag.String("panel", "http://localhost:8080", "Panel base URL")
	serverID := flag.String("server", "", "Server ID to tail")
	email := flag.String("email", "", "Operator email (or PANEL_EMAIL env var)")
	password := flag.String("password", "", "Operator password (or PANEL_PASSWORD env var)")
	logLevel := flag.String("log-level", "warn", "Log level for session diagnostics")
	flag.Parse()

	if *serverID == "" {
		fmt.Fprintln(os.Stderr, "Error: -server is required")
		fmt.Fprintln(os.Stderr, "Example: go run ./cmd/console -server <id> -email admin@panel.local")
		os.Exit(1)
	}

	loginEmail := *email
	if loginEmail == "" {
		loginEmail = os.Getenv("PANEL_EMAIL")
	}
	loginPassword := *password
	if loginPassword == "" {
		loginPassword = os.Getenv("PANEL_PASSWORD")
	}
	if loginEmail == "" || loginPassword == "" {
		fmt.Fprintln(os.Stderr, "Error: credentials required. Use -email/-password flags or PANEL_EMAIL/PANEL_PASSWORD env vars")
		os.Exit(1)
	}

	log := logger.New(*logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := &http.Client{Timeout: 15 * time.Second}
	base := strings.TrimRight(*panelURL, "/")

	operatorToken, err := login(ctx, client, base, loginEmail, loginPassword)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error logging in: %v\n", err)
		os.Exit(1)
	}

	console, err := fetchConsole(ctx, client, base, operatorToken, *serverID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error fetching console endpoint: %v\n", err)
		os.Exit(1)
	}

	cfg := telemetry.DefaultConfig()
	cfg.Endpoint = console.Socket
	cfg.Token = console.Token

	session := telemetry.NewSession(cfg, log)
	sub := session.Feed().Subscribe()
	defer session.Feed().Unsubscribe(sub)

	if err := session.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to daemon: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "connected to %s\n", console.Socket)

	go func() {
		<-ctx.Done()
		session.Close()
	}()
	go forwardStdin(session)

	lastStats := time.Time{}
	for update := range sub.Ch {
		switch update.Kind {
		case telemetry.UpdateConsoleLine:
			fmt.Println(update.Line)
		case telemetry.UpdateConsoleReset:
			for _, line := range session.ConsoleLines() {
				fmt.Println(line)
			}
		case telemetry.UpdateStats:
			if time.Since(lastStats) >= statsInterval {
				fmt.Fprintln(os.Stderr, statsLine(update.Stats))
				lastStats = time.Now()
			}
		case telemetry.UpdateStatus:
			fmt.Fprintf(os.Stderr, "* server is %s\n", update.Status)
		case telemetry.UpdateInstallCompleted:
			fmt.Fprintln(os.Stderr, "* install completed")
		case telemetry.UpdateState:
			switch update.State {
			case telemetry.StateReconnecting:
				fmt.Fprintln(os.Stderr, "* connection lost, reconnecting")
			case telemetry.StateClosed:
				fmt.Fprintln(os.Stderr, "* session closed")
				return
			}
		}
	}
}

func login(ctx context.Context, client *http.Client, base, email, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp struct {
		Token string `json:"token"`
	}
	if err := doJSON(client, req, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return resp.Token, nil
}

type consoleEndpoint struct {
	Socket string `json:"socket"`
	Token  string `json:"token"`
}

func fetchConsole(ctx context.Context, client *http.Client, base, token, serverID string) (*consoleEndpoint, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/servers/"+serverID+"/console", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	var resp consoleEndpoint
	if err := doJSON(client, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func doJSON(client *http.Client, req *http.Request, out interface{}) error {
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func forwardStdin(session *telemetry.Session) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		session.SendCommand(line)
	}
}

// statsLine renders the newest sample of each series the way a status
// bar would show it.
func statsLine(p *telemetry.StatsPayload) string {
	if p == nil {
		return "[stats] n/a"
	}
	return fmt.Sprintf("[stats] cpu %.1f%%  mem %s / %s  disk %s  rx %s  tx %s",
		p.CPUAbsolute,
		humanBytes(float64(p.MemoryBytes)),
		humanBytes(float64(p.MemoryLimitBytes)),
		humanBytes(float64(p.DiskBytes)),
		humanBytes(float64(p.Network.RxBytes)),
		humanBytes(float64(p.Network.TxBytes)))
}

func humanBytes(v float64) string {
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	return fmt.Sprintf("%.1f %s", v, units[i])
}
