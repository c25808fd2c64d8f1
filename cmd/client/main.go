// Command client streams a local PCM audio file to a modalhub server as
// JSON audio frames and prints every result the server sends back. It is
// the stand-in for a live microphone capture process.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/modalhub/modalhub/internal/ws"
)

const connectTimeout = 30 * time.Second

func main() {
	url := flag.String("url", "ws://localhost:6790", "hub WebSocket URL")
	file := flag.String("file", "-", "PCM or WAV file to stream; - for stdin")
	rateFlag := flag.Int("rate", 16000, "sample rate in Hz (16-bit mono assumed)")
	chunkMs := flag.Int("chunk-ms", 200, "audio per frame in milliseconds")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	data, err := readInput(*file)
	if err != nil {
		slog.Error("failed to read input", "file", *file, "err", err)
		os.Exit(1)
	}
	rate := *rateFlag
	if wavRate, pcm, ok := stripWAVHeader(data); ok {
		rate = wavRate
		data = pcm
		slog.Info("detected WAV input", "rate", rate, "pcm_bytes", len(data))
	}

	client := ws.NewClient(*url)
	client.RegisterMessageCallback(func(msg ws.Message) {
		fmt.Println(string(msg.Data))
	})
	client.Start()
	defer client.Stop()

	deadline := time.Now().Add(connectTimeout)
	for !client.IsConnected() {
		if time.Now().After(deadline) {
			slog.Error("could not connect", "url", *url)
			os.Exit(1)
		}
		time.Sleep(100 * time.Millisecond)
	}

	// 16-bit mono: two bytes per sample.
	chunkBytes := rate * 2 * *chunkMs / 1000
	interval := time.Duration(*chunkMs) * time.Millisecond

	for off := 0; off < len(data); off += chunkBytes {
		end := off + chunkBytes
		if end > len(data) {
			end = len(data)
		}
		frame, err := json.Marshal(map[string]any{
			"audio": base64.StdEncoding.EncodeToString(data[off:end]),
			"rate":  rate,
		})
		if err != nil {
			slog.Error("failed to encode frame", "err", err)
			os.Exit(1)
		}
		client.Send(ws.TextBytes(frame))
		time.Sleep(interval) // pace frames at playback speed
	}

	// Give trailing results time to arrive before disconnecting.
	time.Sleep(2 * time.Second)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// stripWAVHeader extracts the sample rate and PCM payload from a RIFF/WAVE
// file. Returns ok=false for anything that is not a WAV, leaving the input
// to be treated as raw PCM.
func stripWAVHeader(data []byte) (rate int, pcm []byte, ok bool) {
	if len(data) < 44 || !bytes.HasPrefix(data, []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return 0, nil, false
	}
	rate = int(binary.LittleEndian.Uint32(data[24:28]))

	// Walk the chunk list to the "data" chunk; the fmt chunk is not always
	// 16 bytes.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		if id == "data" {
			end := off + 8 + size
			if end > len(data) {
				end = len(data)
			}
			return rate, data[off+8 : end], true
		}
		off += 8 + size
	}
	return 0, nil, false
}
