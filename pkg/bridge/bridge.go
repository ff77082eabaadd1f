// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge ties the HIL codec to the MAVLink transports and drives
// them from the simulation tick.
package bridge

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/message"

	"github.com/Thermoquad/hilbridge/pkg/config"
	"github.com/Thermoquad/hilbridge/pkg/hil"
	"github.com/Thermoquad/hilbridge/pkg/link"
	"github.com/Thermoquad/hilbridge/pkg/mavlink"
)

// DefaultInputBuffer is the capacity of each sensor channel
const DefaultInputBuffer = 64

// Inputs are the typed sensor channels the simulator feeds. They are
// drained at the start of every tick.
type Inputs struct {
	IMU         chan hil.IMUSample
	GPS         chan hil.GPSSample
	Groundtruth chan hil.Groundtruth
	Lidar       chan hil.RangeSample
	Sonar       chan hil.RangeSample
	OpticalFlow chan hil.OpticalFlowSample
	IRLock      chan hil.IRLockSample
	Vision      chan hil.VisionSample
}

// NewInputs allocates sensor channels with the given capacity
func NewInputs(size int) *Inputs {
	if size <= 0 {
		size = DefaultInputBuffer
	}
	return &Inputs{
		IMU:         make(chan hil.IMUSample, size),
		GPS:         make(chan hil.GPSSample, size),
		Groundtruth: make(chan hil.Groundtruth, size),
		Lidar:       make(chan hil.RangeSample, size),
		Sonar:       make(chan hil.RangeSample, size),
		OpticalFlow: make(chan hil.OpticalFlowSample, size),
		IRLock:      make(chan hil.IRLockSample, size),
		Vision:      make(chan hil.VisionSample, size),
	}
}

// Output is the result of one tick
type Output struct {
	Motor     []float64 // actuator reference after the staleness check
	Published bool      // false until the first actuator frame arrives
	Armed     bool
}

// Option customises a Bridge
type Option func(*options)

type options struct {
	serialPort link.Port
	noise      hil.NoiseSource
	inputSize  int
}

// WithSerialPort uses an already open device instead of opening one
func WithSerialPort(p link.Port) Option {
	return func(o *options) { o.serialPort = p }
}

// WithNoise replaces the barometer noise source
func WithNoise(n hil.NoiseSource) Option {
	return func(o *options) { o.noise = n }
}

// WithInputBuffer sets the capacity of the sensor channels
func WithInputBuffer(n int) Option {
	return func(o *options) { o.inputSize = n }
}

type jointBinding struct {
	joint Joint
	ct    ControlType
}

// Bridge is one HIL bridge instance
type Bridge struct {
	cfg     config.Config
	codec   *hil.Codec
	encoder *mavlink.Encoder
	router  *link.Router
	stats   *mavlink.Statistics
	inputs  *Inputs

	mu       sync.Mutex
	joints   map[int]jointBinding
	lastTick time.Duration
	ticked   bool
}

// New builds a bridge from configuration. Transport setup failures are
// logged and leave that transport inert; only invalid configuration is
// returned as an error.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Bridge, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	mapping := cfg.Mapping()
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	dialect := mavlink.CommonDialect()
	var encOpts []mavlink.EncoderOption
	decOpts := []mavlink.DecoderOption{mavlink.WithDecoderDialect(dialect)}
	if cfg.Signing.Key != "" {
		key, err := mavlink.ParseKey(cfg.Signing.Key)
		if err != nil {
			return nil, err
		}
		encOpts = append(encOpts, mavlink.WithSigner(mavlink.NewSigner(key, cfg.Signing.LinkID)))
		decOpts = append(decOpts, mavlink.WithSigning(&mavlink.SigningConfig{
			Key:            key,
			AcceptUnsigned: cfg.Signing.AcceptUnsigned,
		}))
	}

	b := &Bridge{
		cfg: cfg,
		codec: hil.NewCodec(hil.CodecConfig{
			Mode:           cfg.Mode(),
			UpdateInterval: cfg.HIL.UpdateInterval.Std(),
			HomeAltitude:   cfg.HIL.HomeAltitude,
			Tailsitter:     cfg.HIL.Tailsitter,
			Mapping:        mapping,
			Noise:          o.noise,
			Dialect:        dialect,
		}),
		encoder: mavlink.NewEncoder(cfg.HIL.SystemID, cfg.HIL.ComponentID, encOpts...),
		stats:   mavlink.NewStatistics(),
		inputs:  NewInputs(o.inputSize),
		joints:  make(map[int]jointBinding),
	}
	b.router = link.NewRouter(b.handleFrame, cfg.UDP.QGCPort)

	b.setupUDP(decOpts)
	if cfg.Serial.Enabled {
		b.setupSerial(ctx, o.serialPort, decOpts)
	}
	return b, nil
}

// udpEndpoints applies the bind rule: with serial the socket listens on
// the autopilot address and relays to the ground station; without serial
// it binds an ephemeral port and talks to the autopilot address.
func udpEndpoints(cfg config.Config) (bind, peer *net.UDPAddr, err error) {
	mav, err := link.ParseAddr(cfg.UDP.MavlinkAddr, cfg.UDP.MavlinkPort)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid mavlink_addr: %w", err)
	}
	if !cfg.Serial.Enabled {
		wildcard, _ := link.ParseAddr(link.AnyAddr, 0)
		return wildcard, mav, nil
	}
	qgc, err := link.ParseAddr(cfg.UDP.QGCAddr, cfg.UDP.QGCPort)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid qgc_addr: %w", err)
	}
	return mav, qgc, nil
}

func (b *Bridge) setupUDP(decOpts []mavlink.DecoderOption) {
	bind, peer, err := udpEndpoints(b.cfg)
	if err != nil {
		log.Printf("[udp] %v, UDP disabled", err)
		return
	}
	u, err := link.ListenUDP(link.UDPConfig{
		Bind:    bind,
		Peer:    peer,
		Decoder: decOpts,
		Stats:   b.stats,
	})
	if err != nil {
		log.Printf("[udp] %v, UDP disabled", err)
		return
	}
	log.Printf("[udp] bound %s, sending to %s", u.LocalAddr(), peer)
	b.router.AttachUDP(u)
}

func (b *Bridge) setupSerial(ctx context.Context, port link.Port, decOpts []mavlink.DecoderOption) {
	if port == nil {
		var err error
		port, err = link.OpenSerialPort(b.cfg.Serial.Device, b.cfg.Serial.Baud)
		if err != nil {
			log.Printf("[serial] %v, serial disabled", err)
			return
		}
	}
	err := b.router.StartSerial(ctx, port, link.SerialConfig{
		QueueSize: b.cfg.Serial.TxQueueSize,
		Decoder:   decOpts,
		Stats:     b.stats,
	})
	if err != nil {
		_ = port.Close()
		log.Printf("[serial] %v, serial disabled", err)
		return
	}
	log.Printf("[serial] opened %s at %d baud", b.cfg.Serial.Device, b.cfg.Serial.Baud)
}

func (b *Bridge) handleFrame(f *mavlink.Frame) {
	b.codec.HandleFrame(f)
}

// Inputs returns the sensor channels
func (b *Bridge) Inputs() *Inputs {
	return b.inputs
}

// Codec returns the message codec
func (b *Bridge) Codec() *hil.Codec {
	return b.codec
}

// Router returns the transport router
func (b *Bridge) Router() *link.Router {
	return b.router
}

// Stats returns the link statistics
func (b *Bridge) Stats() *mavlink.Statistics {
	return b.stats
}

// SetJoint binds a joint to an actuator channel
func (b *Bridge) SetJoint(channel int, j Joint, ct ControlType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.joints[channel] = jointBinding{joint: j, ct: ct}
}

// Send encodes a message and routes it to the autopilot
func (b *Bridge) Send(msg message.Message) {
	f, err := b.encoder.Encode(msg)
	if err != nil {
		log.Printf("[bridge] encode %T: %v", msg, err)
		return
	}
	b.router.Send(f, 0)
}

func (b *Bridge) sendAll(msgs []message.Message) {
	for _, msg := range msgs {
		b.Send(msg)
	}
}

// Tick runs one simulation step: it encodes every pending sensor sample,
// polls the network once, steps the joints toward the latest reference and
// returns the motor output.
func (b *Bridge) Tick(sim hil.SimContext) Output {
	b.codec.SetTime(sim.Time)
	b.drainInputs(sim)
	b.router.Poll()

	b.mu.Lock()
	dt := time.Duration(0)
	if b.ticked {
		dt = sim.Time - b.lastTick
	}
	b.lastTick = sim.Time
	b.ticked = true
	joints := make(map[int]jointBinding, len(b.joints))
	for ch, jb := range b.joints {
		joints[ch] = jb
	}
	b.mu.Unlock()

	out := Output{}
	// one load so Motor and Armed come from the same frame
	ref, ok := b.codec.Actuators().Load()
	if !ok {
		return out
	}
	out.Motor = ref.Output(sim.Time, b.cfg.HIL.ActuatorTimeout.Std())
	out.Published = true
	out.Armed = ref.Armed
	for ch, jb := range joints {
		if ch >= 0 && ch < len(out.Motor) {
			jb.joint.SetTarget(out.Motor[ch], jb.ct, dt)
		}
	}
	return out
}

func (b *Bridge) drainInputs(sim hil.SimContext) {
	in := b.inputs
	// ground truth first so state messages in this tick see it
groundtruth:
	for {
		select {
		case g := <-in.Groundtruth:
			b.codec.SetGroundtruth(g)
		default:
			break groundtruth
		}
	}
	for {
		select {
		case s := <-in.IMU:
			b.sendAll(b.codec.IMU(sim, s))
		case g := <-in.GPS:
			b.sendAll(b.codec.GPS(g))
		case r := <-in.Lidar:
			b.Send(b.codec.Lidar(r))
		case r := <-in.Sonar:
			b.Send(b.codec.Sonar(sim, r))
		case f := <-in.OpticalFlow:
			b.Send(b.codec.OpticalFlow(sim, f))
		case s := <-in.IRLock:
			b.Send(b.codec.IRLock(sim, s))
		case v := <-in.Vision:
			b.Send(b.codec.Vision(v))
		default:
			return
		}
	}
}

// Close shuts down the transports and logs the final statistics
func (b *Bridge) Close() {
	b.router.Close()
	log.Printf("[bridge] closed\n%s", b.stats.String())
}
