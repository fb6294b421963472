package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/faiface/beep"
	beepwav "github.com/faiface/beep/wav"
	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// PCM and container constants.
const (
	PCM_BIT_DEPTH     = 16
	PCM_SAMPLE_BYTES  = PCM_BIT_DEPTH / 8
	PCM_SCALE         = 32767
	PCM_MIN           = -32768
	PCM_MAX           = 32767
	FLAC_BLOCK_SIZE   = 4096
	FLAC_MIN_BLOCK    = 16
	decodeBufferFrame = 512
)

var errNegativeSeek = errors.New("negative seek position")

// EncodePCM serializes w as headerless little-endian signed 16-bit samples.
func EncodePCM(w Waveform) []byte {
	data := make([]byte, PCM_SAMPLE_BYTES*w.Len())

	for i, sample := range w.Samples {
		binary.LittleEndian.PutUint16(data[PCM_SAMPLE_BYTES*i:], uint16(toInt16(sample)))
	}

	return data
}

// EncodeWAV serializes w as a 16-bit mono RIFF/WAVE file.
func EncodeWAV(w Waveform) ([]byte, error) {
	format := beep.Format{
		SampleRate:  beep.SampleRate(w.SampleRate),
		NumChannels: 1,
		Precision:   PCM_SAMPLE_BYTES,
	}

	out := &writeSeeker{}

	err := beepwav.Encode(out, &waveformStreamer{samples: w.Samples}, format)
	if err != nil {
		return nil, fmt.Errorf("failed to encode wav: %w", err)
	}

	return out.Bytes(), nil
}

// EncodeFLAC serializes w as a 16-bit mono FLAC stream using verbatim subframes.
func EncodeFLAC(w Waveform) ([]byte, error) {
	info := &meta.StreamInfo{
		BlockSizeMin:  FLAC_MIN_BLOCK,
		BlockSizeMax:  FLAC_BLOCK_SIZE,
		SampleRate:    uint32(w.SampleRate),
		NChannels:     1,
		BitsPerSample: PCM_BIT_DEPTH,
		NSamples:      uint64(w.Len()),
	}

	out := &writeSeeker{}

	encoder, err := flac.NewEncoder(out, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create flac encoder: %w", err)
	}

	var frameNum uint64

	for start := 0; start < w.Len(); start += FLAC_BLOCK_SIZE {
		end := min(start+FLAC_BLOCK_SIZE, w.Len())

		samples := make([]int32, end-start)
		for i, sample := range w.Samples[start:end] {
			samples[i] = int32(toInt16(sample))
		}

		block := &frame.Frame{
			Header: frame.Header{
				HasFixedBlockSize: true,
				BlockSize:         uint16(len(samples)),
				SampleRate:        uint32(w.SampleRate),
				Channels:          frame.ChannelsMono,
				BitsPerSample:     PCM_BIT_DEPTH,
				Num:               frameNum,
			},
			Subframes: []*frame.Subframe{{
				SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
				Samples:   samples,
				NSamples:  len(samples),
			}},
		}

		writeErr := encoder.WriteFrame(block)
		if writeErr != nil {
			return nil, fmt.Errorf("failed to write flac frame %d: %w", frameNum, writeErr)
		}

		frameNum++
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finalize flac stream: %w", closeErr)
	}

	return out.Bytes(), nil
}

// DecodeWAV reads a RIFF/WAVE file into a mono waveform, averaging channels.
func DecodeWAV(data []byte) (Waveform, error) {
	streamer, format, err := beepwav.Decode(bytes.NewReader(data))
	if err != nil {
		return Waveform{}, fmt.Errorf("failed to decode wav: %w", err)
	}
	defer streamer.Close()

	samples := make([]float32, 0, max(streamer.Len(), 0))
	buffer := make([][2]float64, decodeBufferFrame)

	for {
		n, ok := streamer.Stream(buffer)
		if !ok {
			break
		}

		for _, pair := range buffer[:n] {
			samples = append(samples, float32((pair[0]+pair[1])/2))
		}
	}

	streamErr := streamer.Err()
	if streamErr != nil {
		return Waveform{}, fmt.Errorf("failed to read wav samples: %w", streamErr)
	}

	return Waveform{Samples: samples, SampleRate: int(format.SampleRate)}, nil
}

// toInt16 scales by 32767, truncates toward zero and clamps to int16.
func toInt16(sample float32) int16 {
	value := float64(sample) * PCM_SCALE
	if math.IsNaN(value) {
		return 0
	}

	value = math.Max(PCM_MIN, math.Min(PCM_MAX, value))

	return int16(value)
}

// waveformStreamer adapts mono samples to beep's stereo streaming interface.
type waveformStreamer struct {
	samples []float32
	pos     int
}

func (s *waveformStreamer) Stream(buffer [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}

	n := copySamples(buffer, s.samples[s.pos:])
	s.pos += n

	return n, true
}

func (s *waveformStreamer) Err() error {
	return nil
}

func copySamples(buffer [][2]float64, samples []float32) int {
	n := min(len(buffer), len(samples))

	for i := range n {
		value := float64(samples[i])
		buffer[i][0] = value
		buffer[i][1] = value
	}

	return n
}

// writeSeeker is an in-memory io.WriteSeeker; both encoders rewrite their
// headers once the sample count is known.
type writeSeeker struct {
	buf []byte
	pos int
}

func (ws *writeSeeker) Write(p []byte) (int, error) {
	end := ws.pos + len(p)
	if end > len(ws.buf) {
		ws.buf = append(ws.buf, make([]byte, end-len(ws.buf))...)
	}

	copy(ws.buf[ws.pos:], p)
	ws.pos = end

	return len(p), nil
}

func (ws *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var position int64

	switch whence {
	case io.SeekStart:
		position = offset
	case io.SeekCurrent:
		position = int64(ws.pos) + offset
	case io.SeekEnd:
		position = int64(len(ws.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	if position < 0 {
		return 0, errNegativeSeek
	}

	ws.pos = int(position)

	return position, nil
}

func (ws *writeSeeker) Bytes() []byte {
	return ws.buf
}
