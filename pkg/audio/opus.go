package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// The gateway transports microphone audio as 48 kHz mono Opus packets at
// 20 ms frame size, the codec's native speech configuration.
const (
	OpusSampleRate  = 48000
	OpusChannels    = 1
	OpusFrameSizeMs = 20
	// OpusFrameSize is the number of samples per channel per 20 ms frame.
	OpusFrameSize = OpusSampleRate * OpusFrameSizeMs / 1000 // 960
)

// OpusDecoder wraps a gopus Opus decoder for a single capture stream. Each
// stream gets its own decoder to maintain decoder state correctly across
// consecutive packets. Not safe for concurrent use.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates an Opus decoder configured for gateway capture audio.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(OpusSampleRate, OpusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes an Opus packet into PCM int16 samples and returns the result
// as a byte slice (little-endian int16s).
func (d *OpusDecoder) Decode(packet []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(packet, OpusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// OpusEncoder wraps a gopus Opus encoder for outbound audio (e.g. segment
// playback streamed back to the UI). Not safe for concurrent use.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates an Opus encoder configured for gateway audio.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(OpusSampleRate, OpusChannels, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes PCM int16 data (as little-endian bytes) into an Opus packet.
// The input must contain exactly one 20 ms frame.
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm := BytesToInt16s(pcmBytes)
	packet, err := e.enc.Encode(pcm, OpusFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return packet, nil
}
