package main

import (
	"bytes"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"gateport/internal/backend"
	"gateport/internal/constants"
	"gateport/internal/session"
	"gateport/internal/types"
	"gateport/internal/utils"
)

const defaultServerURL = "http://localhost:8080"

const (
	colorReset  = constants.ColorReset
	colorBold   = constants.ColorBold
	colorDim    = constants.ColorDim
	colorCyan   = constants.ColorCyan
	colorGreen  = constants.ColorGreen
	colorYellow = constants.ColorYellow
	colorRed    = constants.ColorRed
)

func printField(label, value, valueColor string) {
	fmt.Printf("  %s%-12s%s %s%s%s\n", colorDim, label, colorReset, valueColor, value, colorReset)
}

func printSep() {
	fmt.Printf("  %s%s%s\n", colorDim, strings.Repeat("─", 50), colorReset)
}

func fail(format string, args ...any) {
	fmt.Printf("\n  %s✗ %s%s\n\n", colorRed, fmt.Sprintf(format, args...), colorReset)
	os.Exit(1)
}

func usage() {
	fmt.Println()
	fmt.Printf("  %s%sgatectl%s %sv%s%s\n", colorBold, colorCyan, colorReset, colorBold, constants.Version, colorReset)
	fmt.Printf("  %sSession gateway control%s\n", colorDim, colorReset)
	fmt.Println()
	fmt.Printf("  %sUsage:%s\n", colorBold, colorReset)
	fmt.Println("    gatectl <command> [flags]")
	fmt.Println()
	fmt.Printf("  %sCommands:%s\n", colorBold, colorReset)
	fmt.Println("    create     request a session (pending until approved)")
	fmt.Println("    join       create and approve in one step")
	fmt.Println("    list       list sessions")
	fmt.Println("    get        show one session")
	fmt.Println("    approve    approve a pending session")
	fmt.Println("    revoke     revoke a session")
	fmt.Println("    forward    ensure forwarding runs for an active session")
	fmt.Println("    endpoint   print the client connection endpoint")
	fmt.Println("    qr         save the endpoint QR code as a PNG")
	fmt.Println("    stats      gateway counters")
	fmt.Println("    prune      drop revoked and expired sessions")
	fmt.Println("    backend    backend reachability")
	fmt.Println("    watch      stream session transitions")
	fmt.Println("    version    show version")
	fmt.Println()
	fmt.Printf("  %sServer: GATEPORT_SERVER (default %s)%s\n", colorDim, defaultServerURL, colorReset)
	fmt.Println()
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient() *apiClient {
	base := strings.TrimSuffix(utils.GetEnv("GATEPORT_SERVER", defaultServerURL), "/")

	client := &http.Client{Timeout: 10 * time.Second}

	// Self-signed certs are the norm for local HTTPS.
	if strings.HasPrefix(base, "https://") &&
		(strings.Contains(base, "localhost") || strings.Contains(base, "127.0.0.1")) {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}
	return &apiClient{base: base, http: client}
}

func (c *apiClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr types.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

// infoFlags collects repeated -info key=value pairs.
type infoFlags map[string]string

func (f infoFlags) String() string { return "" }

func (f infoFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", v)
	}
	f[key] = value
	return nil
}

func statusColor(s session.Status) string {
	switch s {
	case session.StatusActive:
		return colorGreen
	case session.StatusPending:
		return colorYellow
	case session.StatusRevoked:
		return colorRed
	default:
		return colorDim
	}
}

func printSession(snap session.Snapshot) {
	printField("code", snap.Code, colorCyan)
	printField("status", string(snap.Status), statusColor(snap.Status))
	printField("port", strconv.Itoa(snap.Port), colorYellow)

	if !snap.Status.Terminal() {
		expiresAt := snap.ExpiresAt.Local().Format(constants.TimeFormatShort)
		printField("expires", fmt.Sprintf("%s (%s)", expiresAt, utils.FormatDuration(time.Until(snap.ExpiresAt))), colorReset)
	}

	if len(snap.UserInfo) > 0 {
		pairs := make([]string, 0, len(snap.UserInfo))
		for k, v := range snap.UserInfo {
			pairs = append(pairs, k+"="+v)
		}
		sort.Strings(pairs)
		printField("info", strings.Join(pairs, " "), colorDim)
	}

	if snap.ConnectionCount > 0 {
		traffic := fmt.Sprintf("%s over %d conns", utils.FormatBytes(snap.BytesForwarded), snap.ConnectionCount)
		printField("traffic", traffic, colorReset)
	}
}

func requireCode(args []string, cmd string) string {
	if len(args) != 1 || args[0] == "" {
		fail("usage: gatectl %s CODE", cmd)
	}
	return args[0]
}

func sessionPath(code string) string {
	return constants.EndpointSessions + "/" + code
}

func cmdCreate(c *apiClient, args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	ttl := fs.Duration("ttl", 0, "session lifetime, e.g. 45m (0 = server default)")
	info := infoFlags{}
	fs.Var(info, "info", "user info key=value (repeatable)")
	fs.Parse(args)

	req := types.CreateSessionRequest{UserInfo: info, TTLSeconds: int(ttl.Seconds())}

	var snap session.Snapshot
	if err := c.post(constants.EndpointSessions, req, &snap); err != nil {
		fail("create failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("  %s%s● session requested%s\n\n", colorBold, colorGreen, colorReset)
	printSession(snap)
	if snap.Status == session.StatusPending {
		fmt.Println()
		fmt.Printf("  %sapprove with: gatectl approve %s%s\n", colorDim, snap.Code, colorReset)
	}
	fmt.Println()
}

func cmdJoin(c *apiClient, args []string) {
	fs := flag.NewFlagSet("join", flag.ExitOnError)
	ttl := fs.Duration("ttl", 0, "session lifetime, e.g. 45m (0 = server default)")
	info := infoFlags{}
	fs.Var(info, "info", "user info key=value (repeatable)")
	fs.Parse(args)

	req := types.CreateSessionRequest{UserInfo: info, TTLSeconds: int(ttl.Seconds())}

	var joined types.QuickJoinResponse
	if err := c.post(constants.EndpointQuickJoin, req, &joined); err != nil {
		fail("join failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("  %s%s● session active%s\n\n", colorBold, colorGreen, colorReset)
	printSession(joined.Session)
	printField("connect", joined.Endpoint.ConnectionString, colorBold+colorCyan)
	fmt.Println()
}

func cmdList(c *apiClient) {
	var list types.SessionList
	if err := c.get(constants.EndpointSessions, &list); err != nil {
		fail("list failed: %v", err)
	}

	fmt.Println()
	if list.Count == 0 {
		fmt.Printf("  %sno sessions%s\n\n", colorDim, colorReset)
		return
	}

	fmt.Printf("  %s%-10s %-8s %-6s %10s %6s  %s%s\n",
		colorBold, "CODE", "STATUS", "PORT", "BYTES", "CONNS", "EXPIRES", colorReset)
	for _, snap := range list.Sessions {
		expires := "-"
		if !snap.Status.Terminal() {
			expires = utils.FormatDuration(time.Until(snap.ExpiresAt))
		}
		fmt.Printf("  %s%-10s%s %s%-8s%s %-6d %10s %6d  %s\n",
			colorCyan, snap.Code, colorReset,
			statusColor(snap.Status), snap.Status, colorReset,
			snap.Port,
			utils.FormatBytes(snap.BytesForwarded),
			snap.ConnectionCount,
			expires)
	}
	fmt.Println()
}

func cmdGet(c *apiClient, args []string) {
	code := requireCode(args, "get")

	var snap session.Snapshot
	if err := c.get(sessionPath(code), &snap); err != nil {
		fail("get failed: %v", err)
	}

	fmt.Println()
	printSession(snap)
	fmt.Println()
}

func cmdApprove(c *apiClient, args []string) {
	code := requireCode(args, "approve")

	var snap session.Snapshot
	if err := c.post(sessionPath(code)+"/approve", nil, &snap); err != nil {
		fail("approve failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("  %s%s● session approved%s\n\n", colorBold, colorGreen, colorReset)
	printSession(snap)
	fmt.Println()
	fmt.Printf("  %sendpoint with: gatectl endpoint %s%s\n\n", colorDim, snap.Code, colorReset)
}

func cmdRevoke(c *apiClient, args []string) {
	code := requireCode(args, "revoke")

	var snap session.Snapshot
	if err := c.post(sessionPath(code)+"/revoke", nil, &snap); err != nil {
		fail("revoke failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("  %s%s● session revoked%s\n\n", colorBold, colorYellow, colorReset)
	printSession(snap)
	fmt.Println()
}

func cmdForward(c *apiClient, args []string) {
	code := requireCode(args, "forward")

	var snap session.Snapshot
	if err := c.post(sessionPath(code)+"/forward", nil, &snap); err != nil {
		fail("forward failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("  %s%s● forwarding active%s\n\n", colorBold, colorGreen, colorReset)
	printSession(snap)
	fmt.Println()
}

func cmdEndpoint(c *apiClient, args []string) {
	code := requireCode(args, "endpoint")

	var ep types.EndpointResponse
	if err := c.get(sessionPath(code)+"/endpoint", &ep); err != nil {
		fail("endpoint failed: %v", err)
	}

	fmt.Println()
	printField("connect", ep.ConnectionString, colorBold+colorCyan)
	printField("host", ep.Host, colorReset)
	printField("port", strconv.Itoa(ep.Port), colorYellow)
	fmt.Println()
}

func cmdQR(c *apiClient, args []string) {
	fs := flag.NewFlagSet("qr", flag.ExitOnError)
	out := fs.String("o", "", "output file (default CODE.png)")
	fs.Parse(args)

	code := requireCode(fs.Args(), "qr")

	var qr types.QRResponse
	if err := c.get(sessionPath(code)+"/qr", &qr); err != nil {
		fail("qr failed: %v", err)
	}

	raw := strings.TrimPrefix(qr.QRCode, "data:image/png;base64,")
	png, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		fail("qr decode failed: %v", err)
	}

	path := *out
	if path == "" {
		path = code + ".png"
	}
	if err := os.WriteFile(path, png, 0644); err != nil {
		fail("qr write failed: %v", err)
	}

	fmt.Println()
	printField("connect", qr.ConnectionString, colorBold+colorCyan)
	printField("saved", path, colorGreen)
	fmt.Println()
}

func cmdStats(c *apiClient) {
	var stats types.StatsResponse
	if err := c.get(constants.EndpointStats, &stats); err != nil {
		fail("stats failed: %v", err)
	}

	fmt.Println()
	printField("sessions", fmt.Sprintf("%d active / %d total", stats.ActiveSessions, stats.TotalSessions), colorGreen)
	printField("ports", fmt.Sprintf("%d used / %d free", stats.UsedPorts, stats.FreePorts), colorYellow)
	printField("traffic", utils.FormatBytes(stats.BytesForwarded), colorReset)
	printField("conns", fmt.Sprintf("%d relayed (%d open)", stats.RelayedConnections, stats.ActiveConnections), colorReset)
	if stats.DialFailures > 0 {
		printField("dial fails", strconv.FormatInt(stats.DialFailures, 10), colorRed)
	}
	printField("uptime", utils.FormatDuration(time.Duration(stats.UptimeSeconds)*time.Second), colorDim)
	fmt.Println()
}

func cmdPrune(c *apiClient) {
	var pruned types.PruneResponse
	if err := c.post(constants.EndpointSessions+"/prune", nil, &pruned); err != nil {
		fail("prune failed: %v", err)
	}

	fmt.Println()
	fmt.Printf("  %s● pruned %d session(s)%s\n", colorGreen, pruned.Pruned, colorReset)
	if len(pruned.Codes) > 0 {
		fmt.Printf("  %s%s%s\n", colorDim, strings.Join(pruned.Codes, " "), colorReset)
	}
	fmt.Println()
}

func cmdBackend(c *apiClient) {
	var status backend.Status
	if err := c.get(constants.EndpointBackendStatus, &status); err != nil {
		fail("backend status failed: %v", err)
	}

	fmt.Println()
	if status.Reachable {
		fmt.Printf("  %s%s● backend reachable%s\n\n", colorBold, colorGreen, colorReset)
		printField("addr", status.Addr, colorCyan)
		printField("latency", fmt.Sprintf("%dms", status.LatencyMS), colorReset)
	} else {
		fmt.Printf("  %s%s● backend unreachable%s\n\n", colorBold, colorRed, colorReset)
		printField("addr", status.Addr, colorCyan)
		printField("error", status.LastError, colorRed)
	}
	printField("checked", status.CheckedAt.Local().Format(constants.TimeFormatShort), colorDim)
	fmt.Println()
}

func printEvent(ts, event string, snap session.Snapshot) {
	fmt.Printf("  %s%s%s  %-18s %s%-10s%s %s%-8s%s port %d\n",
		colorDim, ts, colorReset,
		event,
		colorCyan, snap.Code, colorReset,
		statusColor(snap.Status), snap.Status, colorReset,
		snap.Port)
}

func cmdWatch(c *apiClient) {
	wsURL := strings.Replace(c.base, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	wsURL += constants.EndpointEvents

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fail("connect failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	fmt.Println()
	fmt.Printf("  %s● watching session transitions (ctrl+c to stop)%s\n", colorDim, colorReset)
	fmt.Println()

	for {
		var msg types.WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			fail("feed closed: %v", err)
		}

		now := time.Now().Format(constants.TimeFormatShort)
		switch {
		case msg.Type == "session_list":
			for _, snap := range msg.Sessions {
				printEvent(now, msg.Type, snap)
			}
		case msg.Session != nil:
			printEvent(now, msg.Type, *msg.Session)
		}
	}
}

func main() {
	// Pick up GATEPORT_SERVER from a local .env when present.
	_ = godotenv.Load()

	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cmd, rest := args[0], args[1:]
	client := newAPIClient()

	switch cmd {
	case "create":
		cmdCreate(client, rest)
	case "join":
		cmdJoin(client, rest)
	case "list":
		cmdList(client)
	case "get":
		cmdGet(client, rest)
	case "approve":
		cmdApprove(client, rest)
	case "revoke":
		cmdRevoke(client, rest)
	case "forward":
		cmdForward(client, rest)
	case "endpoint":
		cmdEndpoint(client, rest)
	case "qr":
		cmdQR(client, rest)
	case "stats":
		cmdStats(client)
	case "prune":
		cmdPrune(client)
	case "backend":
		cmdBackend(client)
	case "watch":
		cmdWatch(client)
	case "version":
		fmt.Printf("  %s%sgatectl%s %sv%s%s\n", colorBold, colorCyan, colorReset, colorBold, constants.Version, colorReset)
	default:
		fmt.Printf("\n  %s✗ unknown command: %s%s\n", colorRed, cmd, colorReset)
		usage()
		os.Exit(1)
	}
}
