package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// playbackRingSize holds about 21 seconds at 24kHz, enough for a full reply.
const playbackRingSize = 1 << 19

// playbackRing is a single-producer single-consumer ring of samples. The
// audio callback is the only consumer.
type playbackRing struct {
	samples [playbackRingSize]float32
	head    atomic.Uint64 // Write position
	tail    atomic.Uint64 // Read position
}

// push appends samples and returns how many fit.
func (rb *playbackRing) push(samples []float32) int {
	head := rb.head.Load()
	free := playbackRingSize - int(head-rb.tail.Load())
	n := min(len(samples), free)
	for i := 0; i < n; i++ {
		rb.samples[(head+uint64(i))%playbackRingSize] = samples[i]
	}
	rb.head.Add(uint64(n))
	return n
}

// pop returns the next sample, or false when empty.
func (rb *playbackRing) pop() (float32, bool) {
	tail := rb.tail.Load()
	if rb.head.Load() == tail {
		return 0, false
	}
	s := rb.samples[tail%playbackRingSize]
	rb.tail.Add(1)
	return s, true
}

func (rb *playbackRing) len() int {
	return int(rb.head.Load() - rb.tail.Load())
}

func (rb *playbackRing) clear() {
	rb.tail.Store(rb.head.Load())
}

// Player keeps one playback device open and plays queued buffers in order.
type Player struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate int
	ring       *playbackRing
	drained    chan struct{} // Signalled by the callback when the ring empties
	mu         sync.Mutex    // Serializes Play calls
	log        *slog.Logger
}

// NewPlayer opens a mono float32 playback device at sampleRate. miniaudio
// converts to the hardware rate. bufferMs of 0 selects 100ms, which suits
// Bluetooth outputs.
func NewPlayer(sampleRate int, bufferMs uint32, log *slog.Logger) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	if bufferMs == 0 {
		bufferMs = 100
	}
	if log == nil {
		log = slog.Default()
	}

	p := &Player{
		ctx:        ctx,
		sampleRate: sampleRate,
		ring:       &playbackRing{},
		drained:    make(chan struct{}, 1),
		log:        log.With("component", "playback"),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = bufferMs

	onSendFrames := func(pOutputSample, pInputSamples []byte, framecount uint32) {
		for i := 0; i < int(framecount); i++ {
			s, _ := p.ring.pop()
			binary.LittleEndian.PutUint32(pOutputSample[i*4:], math.Float32bits(s))
		}
		if p.ring.len() == 0 {
			select {
			case p.drained <- struct{}{}:
			default:
			}
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}
	p.device = device

	log.Info("🔊 Playback device started", "sampleRate", sampleRate, "bufferMs", bufferMs)
	return p, nil
}

// SampleRate returns the rate Play expects.
func (p *Player) SampleRate() int {
	return p.sampleRate
}

// Play queues samples and blocks until they have been played or ctx is done.
// Concurrent calls play one after another.
func (p *Player) Play(ctx context.Context, samples []float32) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Drop any stale completion signal from a previous buffer.
	select {
	case <-p.drained:
	default:
	}

	written := p.ring.push(samples)
	if written < len(samples) {
		p.log.Warn("⚠️  Playback buffer overflow", "dropped", len(samples)-written)
	}

	// Upper bound: audio length plus slack for device latency.
	limit := time.Duration(written)*time.Second/time.Duration(p.sampleRate) + 2*time.Second
	deadline := time.NewTimer(limit)
	defer deadline.Stop()

	for p.ring.len() > 0 {
		select {
		case <-ctx.Done():
			p.ring.clear()
			return ctx.Err()
		case <-deadline.C:
			p.ring.clear()
			return fmt.Errorf("playback did not finish within %v", limit)
		case <-p.drained:
		}
	}
	return nil
}

// Close stops playback and releases the device.
func (p *Player) Close() {
	p.ring.clear()
	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
