package stream

// Chunk is one unit of decoded media ready for worker consumption.
type Chunk struct {
	// Data is the decoded payload — PCM samples for audio, an encoded
	// image for video.
	Data []byte

	// Rate is the audio sample rate in Hz. Zero for video frames.
	Rate int

	// Width and Height carry the frame dimensions when the client supplied
	// them. Zero when absent or for audio.
	Width  int
	Height int
}
