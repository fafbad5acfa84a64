package main

import (
	"encoding/json"
	"fmt"
	"image/color"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

const (
	cellSize      = 4
	headerHeight  = 60
	screenWidth   = 800
	screenHeight  = 720
	baseURL       = "http://localhost:8080"
	wsHost        = "localhost:8080"
	autoDropEvery = 40 * time.Millisecond
	autoDropBatch = 5
	pollInterval  = 500 * time.Millisecond
)

var (
	backgroundColor = color.RGBA{20, 20, 30, 255}
	rockColor       = color.RGBA{120, 120, 120, 255}
	sandColor       = color.RGBA{230, 200, 90, 255}
	sourceColor     = color.RGBA{255, 60, 60, 255}
	floorColor      = color.RGBA{80, 60, 40, 255}
)

// Position is a cave cell. Y grows downward.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Cell is one occupied cell as sent by the server
type Cell struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	Kind string `json:"kind"`
}

// GrainRecord describes the most recent grain
type GrainRecord struct {
	Number   int      `json:"number"`
	Outcome  string   `json:"outcome"`
	Position Position `json:"position"`
	Steps    int      `json:"steps"`
}

// SimState mirrors the server's run snapshot
type SimState struct {
	Source       Position     `json:"source"`
	Policy       string       `json:"policy"`
	FloorLevel   int          `json:"floor_level"`
	Status       string       `json:"status"`
	Occupancy    []Cell       `json:"occupancy"`
	ScenarioName string       `json:"scenario_name"`
	Settled      int          `json:"settled"`
	Dropped      int          `json:"dropped"`
	LastGrain    *GrainRecord `json:"last_grain,omitempty"`
	Message      string       `json:"message"`
}

// Halted reports whether the run accepts no more grains
func (s *SimState) Halted() bool {
	return strings.HasPrefix(s.Status, "halted")
}

// WSMessage represents WebSocket message wrapper
type WSMessage struct {
	SessionID string    `json:"session_id"`
	SimState  *SimState `json:"sim_state,omitempty"`
	Event     string    `json:"event,omitempty"`
}

// SessionData holds data for a single session
type SessionData struct {
	sessionID  string
	state      *SimState
	wsConn     *websocket.Conn
	lastUpdate time.Time
	autoDrop   bool
	lastDrop   time.Time
}

// Viewer is the desktop client
type Viewer struct {
	sessions      []*SessionData
	activeSession int
	stateMutex    sync.Mutex
	scenario      string
	errorMsg      string
}

// NewViewer attaches to the given sessions, or creates one when none are given
func NewViewer(sessionIDs []string, scenario string) *Viewer {
	v := &Viewer{scenario: scenario}
	if len(sessionIDs) == 0 {
		v.addSession("")
	}
	for _, id := range sessionIDs {
		v.addSession(id)
	}
	return v
}

// addSession creates or attaches to a session and subscribes to its updates
func (v *Viewer) addSession(sessionID string) {
	session := &SessionData{sessionID: sessionID}

	if session.sessionID == "" {
		if err := v.createSession(session); err != nil {
			log.Printf("Failed to create session: %v", err)
			v.errorMsg = err.Error()
			return
		}
	}

	if err := v.fetchState(session); err != nil {
		log.Printf("Failed to fetch state for %s: %v", session.sessionID, err)
	}

	if err := v.connectWebSocket(session); err != nil {
		log.Printf("WebSocket unavailable for %s, falling back to polling: %v", session.sessionID, err)
	} else {
		go v.listenWebSocket(session)
	}

	v.sessions = append(v.sessions, session)
	v.activeSession = len(v.sessions) - 1
}

// createSession starts a new session on the server
func (v *Viewer) createSession(session *SessionData) error {
	payload := "{}"
	if v.scenario != "" {
		payload = fmt.Sprintf(`{"scenario_id":%q}`, v.scenario)
	}

	body, err := post(fmt.Sprintf("%s/api/sessions", baseURL), payload)
	if err != nil {
		return err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to parse session response: %v (body: %s)", err, string(body))
	}

	session.sessionID = result.ID
	log.Printf("Created new session: %s (scenario: %s)", session.sessionID, v.scenario)
	return nil
}

// connectWebSocket establishes WebSocket connection
func (v *Viewer) connectWebSocket(session *SessionData) error {
	wsURL := url.URL{Scheme: "ws", Host: wsHost, Path: "/ws"}
	q := wsURL.Query()
	q.Set("session", session.sessionID)
	wsURL.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL.String(), nil)
	if err != nil {
		return err
	}

	session.wsConn = conn
	log.Printf("WebSocket connected for session %s", session.sessionID)
	return nil
}

// listenWebSocket applies pushed snapshots until the connection drops
func (v *Viewer) listenWebSocket(session *SessionData) {
	defer func() {
		v.stateMutex.Lock()
		if session.wsConn != nil {
			session.wsConn.Close()
			session.wsConn = nil
		}
		v.stateMutex.Unlock()
	}()

	for {
		_, message, err := session.wsConn.ReadMessage()
		if err != nil {
			log.Printf("WebSocket read error for %s: %v", session.sessionID, err)
			return
		}

		var wsMsg WSMessage
		if err := json.Unmarshal(message, &wsMsg); err != nil {
			log.Printf("WebSocket JSON parse error: %v", err)
			continue
		}
		if wsMsg.SimState == nil {
			continue
		}

		v.stateMutex.Lock()
		session.state = wsMsg.SimState
		session.lastUpdate = time.Now()
		v.stateMutex.Unlock()
	}
}

// fetchState polls the session snapshot over REST
func (v *Viewer) fetchState(session *SessionData) error {
	resp, err := http.Get(fmt.Sprintf("%s/api/sessions/%s/state", baseURL, session.sessionID))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var state SimState
	if err := json.Unmarshal(body, &state); err != nil {
		return err
	}

	v.stateMutex.Lock()
	session.state = &state
	session.lastUpdate = time.Now()
	v.stateMutex.Unlock()
	return nil
}

// sendAction posts drop, run or reset for the session
func (v *Viewer) sendAction(session *SessionData, action, payload string) error {
	_, err := post(fmt.Sprintf("%s/api/sessions/%s/%s", baseURL, session.sessionID, action), payload)
	if err != nil {
		return err
	}
	if !v.connected(session) {
		return v.fetchState(session)
	}
	return nil
}

func (v *Viewer) connected(session *SessionData) bool {
	v.stateMutex.Lock()
	defer v.stateMutex.Unlock()
	return session.wsConn != nil
}

func post(url, payload string) ([]byte, error) {
	resp, err := http.Post(url, "application/json", strings.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// Update handles input and drives auto-drop
func (v *Viewer) Update() error {
	if len(v.sessions) == 0 {
		if inpututil.IsKeyJustPressed(ebiten.KeyN) {
			v.addSession("")
		}
		return nil
	}

	// Poll sessions without a WebSocket
	for _, session := range v.sessions {
		if !v.connected(session) && time.Since(session.lastUpdate) > pollInterval {
			if err := v.fetchState(session); err != nil {
				log.Printf("Error fetching state for %s: %v", session.sessionID, err)
			}
		}
	}

	for i := ebiten.Key1; i <= ebiten.Key9; i++ {
		if inpututil.IsKeyJustPressed(i) {
			if idx := int(i - ebiten.Key1); idx < len(v.sessions) {
				v.activeSession = idx
				log.Printf("Switched to session %d: %s", idx+1, v.sessions[idx].sessionID)
			}
		}
	}

	if inpututil.IsKeyJustPressed(ebiten.KeyN) && len(v.sessions) < 9 {
		v.addSession("")
	}

	session := v.sessions[v.activeSession]

	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		session.autoDrop = !session.autoDrop
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyD) {
		v.report(v.sendAction(session, "drop", `{"count":1}`))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyEnter) {
		session.autoDrop = false
		v.report(v.sendAction(session, "run", "{}"))
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		session.autoDrop = false
		v.report(v.sendAction(session, "reset", "{}"))
	}

	v.stateMutex.Lock()
	halted := session.state != nil && session.state.Halted()
	v.stateMutex.Unlock()
	if halted {
		session.autoDrop = false
	}
	if session.autoDrop && time.Since(session.lastDrop) >= autoDropEvery {
		session.lastDrop = time.Now()
		v.report(v.sendAction(session, "drop", fmt.Sprintf(`{"count":%d}`, autoDropBatch)))
	}

	return nil
}

func (v *Viewer) report(err error) {
	if err != nil {
		v.errorMsg = err.Error()
		log.Printf("Action failed: %v", err)
		return
	}
	v.errorMsg = ""
}

// Draw renders the active session's cave with the source at the top centre
func (v *Viewer) Draw(screen *ebiten.Image) {
	screen.Fill(backgroundColor)

	if len(v.sessions) == 0 {
		ebitenutil.DebugPrintAt(screen, "No session. Is the server running on "+baseURL+"? Press N to retry.", 20, 20)
		return
	}

	v.stateMutex.Lock()
	defer v.stateMutex.Unlock()

	session := v.sessions[v.activeSession]
	state := session.state
	if state == nil {
		ebitenutil.DebugPrintAt(screen, "Waiting for state of "+session.sessionID, 20, 20)
		return
	}

	originX := state.Source.X - screenWidth/cellSize/2
	originY := state.Source.Y
	toScreen := func(x, y int) (float64, float64) {
		return float64((x - originX) * cellSize), float64(headerHeight + (y-originY)*cellSize)
	}

	if state.Policy == "floor_saturation" {
		_, fy := toScreen(0, state.FloorLevel+2)
		ebitenutil.DrawRect(screen, 0, fy, screenWidth, cellSize, floorColor)
	}

	for _, c := range state.Occupancy {
		x, y := toScreen(c.X, c.Y)
		if x < 0 || x >= screenWidth || y >= screenHeight {
			continue
		}
		ebitenutil.DrawRect(screen, x, y, cellSize, cellSize, cellColor(c.Kind))
	}

	sx, sy := toScreen(state.Source.X, state.Source.Y)
	ebitenutil.DrawRect(screen, sx, sy, cellSize, cellSize, sourceColor)

	v.drawHeader(screen, session)
}

func (v *Viewer) drawHeader(screen *ebiten.Image, session *SessionData) {
	state := session.state
	connStatus := "POLL"
	if session.wsConn != nil {
		connStatus = "WS"
	}

	auto := ""
	if session.autoDrop {
		auto = " AUTO"
	}

	info := fmt.Sprintf("[%d/%d] %s [%s] %s | %s | settled %d | %s%s",
		v.activeSession+1, len(v.sessions), session.sessionID, connStatus,
		state.ScenarioName, state.Policy, state.Settled, state.Status, auto)
	ebitenutil.DebugPrintAt(screen, info, 10, 5)

	if state.LastGrain != nil {
		g := state.LastGrain
		ebitenutil.DebugPrintAt(screen, fmt.Sprintf("Last grain #%d %s at %d,%d after %d steps",
			g.Number, g.Outcome, g.Position.X, g.Position.Y, g.Steps), 10, 20)
	}

	if v.errorMsg != "" {
		ebitenutil.DebugPrintAt(screen, "Error: "+v.errorMsg, 10, 35)
	} else {
		ebitenutil.DebugPrintAt(screen, "D drop, SPACE auto, ENTER run, R reset, N new session, 1-9 switch", 10, 35)
	}
}

// Layout returns the viewer screen size
func (v *Viewer) Layout(outsideWidth, outsideHeight int) (int, int) {
	return screenWidth, screenHeight
}

func cellColor(kind string) color.Color {
	switch kind {
	case "rock":
		return rockColor
	case "sand":
		return sandColor
	default:
		return color.RGBA{50, 50, 50, 255}
	}
}

func main() {
	// Session IDs may be passed as arguments; SCENARIO picks the scenario for new ones
	viewer := NewViewer(os.Args[1:], os.Getenv("SCENARIO"))

	ebiten.SetWindowSize(screenWidth, screenHeight)
	ebiten.SetWindowTitle("Sandfall - Desktop Viewer")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(viewer); err != nil {
		log.Fatal(err)
	}
}
