// Command loadtest streams a WAV file over the gateway's WebSocket
// transport in real time, the way a live client would, and prints every
// delivery frame it receives back.
package main

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wawa9149/speech-gateway/internal/models"
)

const wavHeaderSize = 44

// 16kHz 16-bit mono = 32000 bytes/second; 100ms chunks = 3200 bytes, the
// unit the segmentation FSM's chunk clock counts in.
const chunkSize = 3200
const chunkIntervalMs = 100

func main() {
	audioFile := flag.String("audio", "testdata/sample.wav", "path to a 16kHz 16-bit mono WAV file")
	serverAddr := flag.String("server", "localhost:8080", "gateway host:port")
	flag.Parse()

	f, err := os.Open(*audioFile)
	if err != nil {
		log.Fatalf("open audio file: %v", err)
	}
	defer f.Close()

	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		log.Fatalf("read wav header: %v", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		log.Fatal("not a valid WAV file")
	}

	audioFormat := binary.LittleEndian.Uint16(header[20:22])
	numChannels := binary.LittleEndian.Uint16(header[22:24])
	sampleRate := binary.LittleEndian.Uint32(header[24:28])
	bitsPerSample := binary.LittleEndian.Uint16(header[34:36])
	log.Printf("wav: format=%d channels=%d sampleRate=%d bitsPerSample=%d", audioFormat, numChannels, sampleRate, bitsPerSample)
	if audioFormat != 1 {
		log.Fatal("only PCM format supported")
	}
	if sampleRate != 16000 || numChannels != 1 {
		log.Printf("warning: expected 16kHz mono, got sampleRate=%d channels=%d", sampleRate, numChannels)
	}

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: "/v1/stream"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()
	log.Printf("connected to %s", u.String())

	sessionID := make(chan string, 1)
	done := make(chan struct{})
	go readLoop(conn, sessionID, done)

	if err := conn.WriteJSON(models.EventRequest{Event: models.EventTurnStart}); err != nil {
		log.Fatalf("send turn start: %v", err)
	}

	id := <-sessionID
	log.Printf("session started: %s", id)

	chunk := make([]byte, chunkSize)
	var totalBytes int64
	var chunkNum int
	start := time.Now()

	for {
		n, err := f.Read(chunk)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatalf("read audio: %v", err)
		}

		chunkNum++
		totalBytes += int64(n)

		msg := models.AudioStream{
			SessionID: id,
			Content:   base64.StdEncoding.EncodeToString(chunk[:n]),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Fatalf("send audio chunk: %v", err)
		}

		if chunkNum%10 == 0 {
			log.Printf("sent chunk %d (%d bytes total)", chunkNum, totalBytes)
		}
		time.Sleep(chunkIntervalMs * time.Millisecond)
	}

	elapsed := time.Since(start)
	log.Printf("finished streaming: %d chunks, %d bytes in %v", chunkNum, totalBytes, elapsed)

	if err := conn.WriteJSON(models.EventRequest{Event: models.EventTurnEnd, SessionID: id}); err != nil {
		log.Fatalf("send turn end: %v", err)
	}

	<-done
	log.Println("session drained, exiting")
}

// readLoop prints every delivery frame and reports the session id once
// turnReady arrives, then closes done once deliveryEnd arrives.
func readLoop(conn *websocket.Conn, sessionID chan<- string, done chan<- struct{}) {
	defer close(done)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			continue
		}

		switch envelope.Type {
		case "turnReady":
			var msg models.TurnReady
			_ = json.Unmarshal(data, &msg)
			sessionID <- msg.SessionID
		case "delivery":
			var msg models.Delivery
			_ = json.Unmarshal(data, &msg)
			kind := "partial"
			if msg.End == 1 {
				kind = "final"
			}
			log.Printf("[%s] %s: %q (confidence=%.2f)", kind, msg.SessionID, msg.Result.Text, msg.Result.Confidence)
		case "deliveryEnd":
			return
		}
	}
}
