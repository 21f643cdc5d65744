// Command wsclient joins the transcript broadcast and prints every event.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"live-transcription-service/internal/models"
)

func main() {
	url := flag.String("url", "ws://localhost:8765/ws", "gateway websocket URL")
	topic := flag.String("topic", "transcript:lobby", "topic to join")
	assistant := flag.String("assistant", "wsclient", "domain_assistant_id sent on join")
	locale := flag.String("locale", "en-US", "locale sent on join")
	finalsOnly := flag.Bool("finals", false, "print final transcripts only")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ws, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", *url).Msg("Failed to connect")
	}
	defer ws.Close()

	log.Info().Str("url", *url).Msg("Connected to gateway")

	join := models.InboundMessage{
		Topic: *topic,
		Event: models.EventJoin,
		Payload: map[string]any{
			"domain_assistant_id": *assistant,
			"locale":              *locale,
		},
	}
	if err := ws.WriteJSON(join); err != nil {
		log.Fatal().Err(err).Msg("Failed to send join")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info().Msg("Gateway closed the connection")
				return
			}
			log.Error().Err(err).Msg("Connection lost")
			return
		}

		var reply models.StatusReply
		if err := json.Unmarshal(data, &reply); err == nil && reply.Status != "" {
			log.Info().Str("status", reply.Status).Msg("Joined")
			continue
		}

		var msg models.BroadcastMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("Unexpected message")
			continue
		}
		if *finalsOnly && !msg.IsFinal {
			continue
		}
		log.Info().Bool("isFinal", msg.IsFinal).Msg(msg.Message)
	}
}
