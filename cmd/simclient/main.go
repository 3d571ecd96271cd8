package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

var (
	backendURL = flag.String("url", "http://localhost:8080", "backend base URL")
	mode       = flag.String("mode", "yoga", "session mode: yoga or desk")
	frameRate  = flag.Int("fps", 15, "synthetic landmark frames per second")
	maxSeconds = flag.Int("max-seconds", 180, "give up after this many seconds")
)

type keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// standingFrame is an upright full-body pose, the mountain-pose
// geometry the backend library references.
func standingFrame() map[string]keypoint {
	f := make(map[string]keypoint, 33)
	set := func(i int, x, y float64) {
		f[strconv.Itoa(i)] = keypoint{X: x, Y: y, Z: 0.1, Visibility: 0.9}
	}
	for i := 0; i <= 10; i++ { // head landmarks
		set(i, 0.5, 0.12)
	}
	set(11, 0.58, 0.25) // shoulders
	set(12, 0.42, 0.25)
	set(13, 0.62, 0.40) // elbows
	set(14, 0.38, 0.40)
	set(15, 0.63, 0.54) // wrists
	set(16, 0.37, 0.54)
	for _, i := range []int{17, 19, 21} {
		set(i, 0.64, 0.57)
	}
	for _, i := range []int{18, 20, 22} {
		set(i, 0.36, 0.57)
	}
	set(23, 0.55, 0.55) // hips
	set(24, 0.45, 0.55)
	set(25, 0.55, 0.72) // knees
	set(26, 0.45, 0.72)
	set(27, 0.55, 0.88) // ankles
	set(28, 0.45, 0.88)
	set(29, 0.56, 0.90)
	set(30, 0.44, 0.90)
	set(31, 0.57, 0.92)
	set(32, 0.43, 0.92)
	return f
}

// seatedFrame is an upper-body desk pose for the posture endpoint.
func seatedFrame() map[string]keypoint {
	f := make(map[string]keypoint, 33)
	set := func(i int, x, y, z float64) {
		f[strconv.Itoa(i)] = keypoint{X: x, Y: y, Z: z, Visibility: 0.9}
	}
	set(0, 0.5, 0.20, -0.1) // nose
	set(7, 0.56, 0.19, 0)   // ears
	set(8, 0.44, 0.19, 0)
	set(11, 0.58, 0.35, 0) // shoulders
	set(12, 0.42, 0.35, 0)
	set(23, 0.55, 0.65, 0) // hips
	set(24, 0.45, 0.65, 0)
	return f
}

// jitter adds small per-frame noise so smoothing has work to do.
func jitter(f map[string]keypoint) map[string]keypoint {
	out := make(map[string]keypoint, len(f))
	for k, kp := range f {
		kp.X += (rand.Float64() - 0.5) * 0.004
		kp.Y += (rand.Float64() - 0.5) * 0.004
		out[k] = kp
	}
	return out
}

// Проверка состояния
func testHealth() error {
	fmt.Println("\n[TEST] Testing /api/health...")
	resp, err := http.Get(*backendURL + "/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	fmt.Printf("✓ Health check: %s\n", string(body))
	return nil
}

func wsURL(path string) string {
	u := strings.Replace(*backendURL, "http://", "ws://", 1)
	u = strings.Replace(u, "https://", "wss://", 1)
	return u + path
}

// Йога-сессия по WebSocket
func runYogaSession() error {
	fmt.Println("\n[TEST] Streaming a yoga session on /ws/session...")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL("/ws/session"), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %v", err)
	}
	defer conn.Close()

	configure := map[string]interface{}{
		"action": "configure",
		"manifest": map[string]interface{}{
			"pose_ids": []string{"mountain"},
			"style":    "power",
		},
	}
	if err := conn.WriteJSON(configure); err != nil {
		return fmt.Errorf("configure failed: %v", err)
	}

	frames := time.NewTicker(time.Second / time.Duration(*frameRate))
	defer frames.Stop()
	deadline := time.After(time.Duration(*maxSeconds) * time.Second)

	type serverMsg struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	incoming := make(chan serverMsg, 64)
	readErr := make(chan error, 1)
	go func() {
		for {
			var msg serverMsg
			if err := conn.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			incoming <- msg
		}
	}()

	base := standingFrame()
	voiceSent := false
	lastPhase := ""
	for {
		select {
		case <-frames.C:
			frame := map[string]interface{}{
				"action":    "landmarks",
				"landmarks": jitter(base),
				"detected":  true,
			}
			if err := conn.WriteJSON(frame); err != nil {
				return fmt.Errorf("frame write failed: %v", err)
			}

		case msg := <-incoming:
			switch msg.Type {
			case "manifest":
				fmt.Println("✓ Manifest received")
			case "session_started":
				fmt.Printf("✓ Session started: %s\n", string(msg.Data))
			case "snapshot":
				var snap struct {
					Phase            string  `json:"phase"`
					Score            float64 `json:"score"`
					RemainingSeconds int     `json:"remainingSeconds"`
				}
				if err := json.Unmarshal(msg.Data, &snap); err != nil {
					continue
				}
				if snap.Phase != lastPhase {
					fmt.Printf("  phase: %s (score %.0f, %ds left)\n",
						snap.Phase, snap.Score, snap.RemainingSeconds)
					lastPhase = snap.Phase
				}
				if snap.Phase == "instructions" && !voiceSent {
					voiceSent = true
					conn.WriteJSON(map[string]string{"action": "voice_done"})
				}
			case "alert":
				fmt.Printf("  ⚠ alert: %s\n", string(msg.Data))
			case "report":
				fmt.Printf("✓ Report: %s\n", string(msg.Data))
				return nil
			case "error":
				return fmt.Errorf("server error: %s", string(msg.Data))
			}

		case err := <-readErr:
			return fmt.Errorf("read failed: %v", err)

		case <-deadline:
			return fmt.Errorf("session did not complete in %ds", *maxSeconds)
		}
	}
}

// Сидячая сессия по WebSocket
func runDeskSession() error {
	fmt.Println("\n[TEST] Streaming a desk posture session on /ws/posture...")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL("/ws/posture"), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"action": "start_session"}); err != nil {
		return err
	}

	base := seatedFrame()

	// Calibration frames until the server reports completion.
	calibrated := false
	for i := 0; i < 60 && !calibrated; i++ {
		conn.WriteJSON(map[string]interface{}{
			"action":    "calibrate_landmarks",
			"landmarks": jitter(base),
		})
		var msg struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("calibration read failed: %v", err)
		}
		if msg.Type == "calibration_complete" {
			calibrated = true
		}
		time.Sleep(90 * time.Millisecond)
	}
	if !calibrated {
		return fmt.Errorf("calibration did not complete")
	}
	fmt.Println("✓ Calibration complete")

	// A short monitoring stretch, paced under the per-connection
	// message limit so every frame gets a metrics reply.
	for i := 0; i < 100; i++ {
		conn.WriteJSON(map[string]interface{}{
			"action":    "process_landmarks",
			"landmarks": jitter(base),
		})
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("monitoring read failed: %v", err)
		}
		time.Sleep(90 * time.Millisecond)
	}

	if err := conn.WriteJSON(map[string]string{"action": "stop_session"}); err != nil {
		return err
	}
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("summary read failed: %v", err)
		}
		if msg.Type == "session_stopped" {
			fmt.Printf("✓ Summary: %s\n", string(msg.Data))
			return nil
		}
	}
}

// Просмотр сеансов
func testGetSessions() error {
	fmt.Println("\n[TEST] Testing /api/sessions (GET)...")

	resp, err := http.Get(*backendURL + "/api/sessions")
	if err != nil {
		return fmt.Errorf("get sessions failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get sessions failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var sessions []interface{}
	if err := json.Unmarshal(body, &sessions); err != nil {
		return fmt.Errorf("failed to parse sessions: %v", err)
	}

	fmt.Printf("✓ Retrieved %d sessions\n", len(sessions))
	return nil
}

func main() {
	flag.Parse()

	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("HOHM.STUDIO - Backend Simulation Client")
	fmt.Println("=" + strings.Repeat("=", 60))

	fmt.Println("\n[INFO] Make sure the backend is running on", *backendURL)

	if err := testHealth(); err != nil {
		log.Printf("❌ Health check failed: %v", err)
		os.Exit(1)
	}

	var err error
	switch *mode {
	case "yoga":
		err = runYogaSession()
	case "desk":
		err = runDeskSession()
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		log.Printf("❌ Session failed: %v", err)
		os.Exit(1)
	}

	if err := testGetSessions(); err != nil {
		log.Printf("⚠ Session listing failed: %v", err)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("✅ All tests completed successfully!")
	fmt.Println("=" + strings.Repeat("=", 60))
}
