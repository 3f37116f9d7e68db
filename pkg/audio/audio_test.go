package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/MrWong99/dictaflow/pkg/audio"
)

// sinePCM generates a 440 Hz sine-wave PCM buffer with the given amplitude.
func sinePCM(samples int, amplitude float64) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func TestRMS_Silence_IsZero(t *testing.T) {
	if rms := audio.RMS(make([]byte, 3200)); rms != 0 {
		t.Fatalf("RMS of silence = %v, want 0", rms)
	}
}

func TestRMS_SineWave_NearTheoreticalValue(t *testing.T) {
	// RMS of a sine wave is amplitude/sqrt(2).
	const amplitude = 10000.0
	rms := audio.RMS(sinePCM(16000, amplitude))
	want := amplitude / math.Sqrt2
	if math.Abs(rms-want) > want*0.05 {
		t.Fatalf("RMS = %v, want ≈ %v", rms, want)
	}
}

func TestRMS_EmptyBuffer_IsZero(t *testing.T) {
	if rms := audio.RMS(nil); rms != 0 {
		t.Fatalf("RMS of empty buffer = %v, want 0", rms)
	}
}

func TestPCMDuration(t *testing.T) {
	// 1 second of 16 kHz mono 16-bit PCM is 32 000 bytes.
	if d := audio.PCMDuration(32000, 16000, 1); d.Seconds() != 1.0 {
		t.Fatalf("duration = %v, want 1s", d)
	}
	if d := audio.PCMDuration(32000, 0, 1); d != 0 {
		t.Fatalf("duration with invalid rate = %v, want 0", d)
	}
}

func TestEncodeDecodeWAV_PreservesPCMAndFormat(t *testing.T) {
	pcm := sinePCM(1600, 5000)
	wav := audio.EncodeWAV(pcm, 16000, 1)

	got, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Fatalf("format = %d Hz / %d ch, want 16000/1", rate, channels)
	}
	if len(got) != len(pcm) {
		t.Fatalf("pcm length = %d, want %d", len(got), len(pcm))
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	if _, _, _, err := audio.DecodeWAV([]byte("definitely not a wav file at all, no sir")); err == nil {
		t.Fatal("expected error for non-WAV input")
	}
}

func TestDownmixMono_AveragesChannels(t *testing.T) {
	// Two-channel frame: L=100, R=300 → mono 200.
	stereo := audio.Int16sToBytes([]int16{100, 300, -100, -300})
	mono := audio.BytesToInt16s(audio.DownmixMono(stereo, 2))
	if len(mono) != 2 || mono[0] != 200 || mono[1] != -200 {
		t.Fatalf("downmix = %v, want [200 -200]", mono)
	}
}

func TestResample_HalvesSampleCount(t *testing.T) {
	in := sinePCM(960, 8000) // one 20 ms frame at 48 kHz
	out := audio.Resample(in, 48000, 16000)
	if got, want := len(out), len(in)/3; got != want {
		t.Fatalf("resampled length = %d, want %d", got, want)
	}
}

func TestResample_SameRate_ReturnsInput(t *testing.T) {
	in := sinePCM(160, 8000)
	out := audio.Resample(in, 16000, 16000)
	if &in[0] != &out[0] {
		t.Fatal("expected input buffer to be returned unchanged")
	}
}
