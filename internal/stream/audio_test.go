package stream

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/modalhub/modalhub/internal/ws"
)

func audioJSON(data []byte, rate int) ws.Message {
	b64 := base64.StdEncoding.EncodeToString(data)
	return ws.Text(fmt.Sprintf(`{"audio":%q,"rate":%d}`, b64, rate))
}

func TestAudioInput_JSONFrame(t *testing.T) {
	a := NewAudioInput(16000, nil)
	a.HandleIncoming("conn-1", audioJSON([]byte("abc"), 16000))

	chunk, ok := a.GetChunk()
	if !ok {
		t.Fatal("GetChunk: expected a chunk")
	}
	if !bytes.Equal(chunk.Data, []byte("abc")) {
		t.Errorf("chunk data: got %q, want %q", chunk.Data, "abc")
	}
	if chunk.Rate != 16000 {
		t.Errorf("chunk rate: got %d, want 16000", chunk.Rate)
	}
}

func TestAudioInput_JSONFrameMissingRate_UsesDefault(t *testing.T) {
	a := NewAudioInput(22050, nil)
	b64 := base64.StdEncoding.EncodeToString([]byte("pcm"))
	a.HandleIncoming("conn-1", ws.Text(fmt.Sprintf(`{"audio":%q}`, b64)))

	chunk, ok := a.GetChunk()
	if !ok {
		t.Fatal("GetChunk: expected a chunk")
	}
	if chunk.Rate != 22050 {
		t.Errorf("chunk rate: got %d, want default 22050", chunk.Rate)
	}
}

func TestAudioInput_LegacyBinaryFrame(t *testing.T) {
	a := NewAudioInput(16000, nil)
	raw := []byte{0x01, 0x02, 0x03, 0x04}
	a.HandleIncoming("conn-1", ws.BinaryData(raw))

	chunk, ok := a.GetChunk()
	if !ok {
		t.Fatal("GetChunk: expected a chunk")
	}
	if !bytes.Equal(chunk.Data, raw) {
		t.Errorf("chunk data: got %v, want %v", chunk.Data, raw)
	}
	if chunk.Rate != 16000 {
		t.Errorf("legacy chunk rate: got %d, want 16000", chunk.Rate)
	}
}

func TestAudioInput_MalformedFramesDropped(t *testing.T) {
	a := NewAudioInput(16000, nil)

	a.HandleIncoming("conn-1", ws.Text("not json at all"))
	a.HandleIncoming("conn-1", ws.Text(`{"rate":16000}`))
	a.HandleIncoming("conn-1", ws.Text(`{"audio":"%%%not-base64%%%"}`))

	if _, ok := a.GetChunk(); ok {
		t.Fatal("GetChunk: malformed frames must not produce chunks")
	}

	// A well-formed frame after the bad ones still goes through.
	a.HandleIncoming("conn-1", audioJSON([]byte("ok"), 8000))
	chunk, ok := a.GetChunk()
	if !ok {
		t.Fatal("GetChunk: expected chunk after recovery")
	}
	if string(chunk.Data) != "ok" || chunk.Rate != 8000 {
		t.Errorf("recovered chunk: got %q/%d", chunk.Data, chunk.Rate)
	}
}

func TestAudioInput_GetChunkEmpty(t *testing.T) {
	a := NewAudioInput(16000, nil)
	if _, ok := a.GetChunk(); ok {
		t.Error("GetChunk on empty adapter: got a chunk, want none")
	}
}

func TestAudioInput_FIFO(t *testing.T) {
	a := NewAudioInput(16000, nil)
	for i := 0; i < 3; i++ {
		a.HandleIncoming("conn-1", audioJSON([]byte{byte(i)}, 16000))
	}
	for i := 0; i < 3; i++ {
		chunk, ok := a.GetChunk()
		if !ok {
			t.Fatalf("GetChunk: missing chunk %d", i)
		}
		if chunk.Data[0] != byte(i) {
			t.Errorf("chunk %d: got %d", i, chunk.Data[0])
		}
	}
}

func TestAudioInput_StopMakesHandleIncomingNoOp(t *testing.T) {
	a := NewAudioInput(16000, nil)
	a.Stop()
	a.HandleIncoming("conn-1", audioJSON([]byte("late"), 16000))
	if _, ok := a.GetChunk(); ok {
		t.Error("GetChunk after Stop: got a chunk, want none")
	}
	a.Stop() // second Stop is a no-op
}
