package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"RELAY_ADDR,default=localhost:8000"`
	RoomID        string `env:"RELAY_ROOM_ID,default=lobby"`
	Token         string `env:"RELAY_TOKEN"`
	LogLevel      string `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run joins a room, sends every stdin line as a frame and prints what other
// members send until Ctrl+C or the relay closes the connection.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open the websocket.
	target := url.URL{Scheme: "ws", Host: config.ServerAddress, Path: "/ws/" + config.RoomID}
	header := http.Header{}
	if config.Token != "" {
		header.Set("Authorization", "Bearer "+config.Token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), header)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to relay at %s: %w", target.String(), err)
	}
	defer func() {
		log.Info("Closing connection...")
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = ws.Close()
	}()

	log.Info("Connected (Ctrl+C to quit)", "address", config.ServerAddress, "room_id", config.RoomID)

	// 4. Forward stdin lines.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := ws.WriteMessage(websocket.TextMessage, scanner.Bytes()); err != nil {
				log.Error("failed to send frame", "error", err)
				stop()
				return
			}
		}
	}()

	// 5. Reception loop.
	frames := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			frames <- data
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case err := <-readErr:
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection error: %w", err)
		case frame := <-frames:
			fmt.Printf("[%s] %s\n", time.Now().Format(time.TimeOnly), frame)
		}
	}
}
