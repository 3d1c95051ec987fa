// Package server implements the Modbus server request pipeline: frame
// ingest, address/function parsing, mapping dispatch, exception and
// broadcast handling, per spec.md §4.4.
package server

import (
	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/diag"
	"github.com/lgili/modbuscore/fsm"
	"github.com/lgili/modbuscore/observer"
	"github.com/lgili/modbuscore/pdu"
	"github.com/lgili/modbuscore/pool"
	"github.com/lgili/modbuscore/transport"
)

// PipelineState is one of the pipeline's coarse-grained states. spec.md
// §4.4 names finer sub-states (Parsing-address, Calculating-CRC, ...); those
// live inside handleFrame/dispatch as plain sequential code, the same level
// of collapse client.Engine applies to its own FSM (see DESIGN.md).
type PipelineState int

const (
	PipelineIdle PipelineState = iota
	PipelineReceiving
	PipelineProcessing
	PipelineSending
	PipelineError
)

// String implements observer.ClientState-shaped logging.
func (s PipelineState) String() string {
	switch s {
	case PipelineIdle:
		return "idle"
	case PipelineReceiving:
		return "receiving"
	case PipelineProcessing:
		return "processing"
	case PipelineSending:
		return "sending"
	case PipelineError:
		return "error"
	default:
		return "unknown"
	}
}

type pipelineEvent int

const (
	evBytesIn pipelineEvent = iota
	evFrameReady
	evResponseSent
	evFrameError
	evErrorCleared
)

// DefaultMaxConsecutiveErrors bounds how many errors the pipeline tolerates
// in a row before it stops clearing PipelineError, per spec.md §4.4 "Error
// state". Only the errors the pipeline itself reports are counted (a failed
// transport Recv, an exhausted request pool); CRC, malformed-header and
// scratch-overflow errors are absorbed inside the framer and are not counted.
const DefaultMaxConsecutiveErrors = 8

// Default scratch sizing.
const (
	DefaultRXBufferSize  = 512
	DefaultResponseBuf   = modbuscore.MaxPDUSize + 8
)

// Option configures a Pipeline at construction time.
type Option func(*Pipeline)

// WithObserver attaches a lifecycle event sink.
func WithObserver(o observer.Observer) Option { return func(p *Pipeline) { p.obs = o } }

// WithDiag attaches a diagnostics sink.
func WithDiag(d *diag.Diag) Option { return func(p *Pipeline) { p.diag = d } }

// WithBootloaderUnitID configures an additional implementation-defined unit
// ID the pipeline accepts besides its own and broadcast, per spec.md §4.4.
func WithBootloaderUnitID(id byte) Option {
	return func(p *Pipeline) { p.bootloaderUnitID = &id }
}

// WithDeviceIdentity attaches the FC 0x2B/0x0E object table.
func WithDeviceIdentity(d *DeviceIdentity) Option { return func(p *Pipeline) { p.deviceID = d } }

// WithServerID configures the FC 0x11 report-server-ID response payload.
func WithServerID(id []byte, running bool) Option {
	return func(p *Pipeline) { p.serverID, p.serverRunning = id, running }
}

// WithExceptionStatus configures the FC 0x07 read-exception-status byte.
func WithExceptionStatus(status byte) Option {
	return func(p *Pipeline) { p.exceptionStatus = status }
}

// WithMaxConsecutiveErrors overrides DefaultMaxConsecutiveErrors.
func WithMaxConsecutiveErrors(n int) Option {
	return func(p *Pipeline) { p.maxConsecutiveErrors = n }
}

// WithRXBufferSize overrides the per-Poll transport read buffer size.
func WithRXBufferSize(n int) Option { return func(p *Pipeline) { p.rxBuf = make([]byte, n) } }

// WithRequestPoolSize overrides the pooled request-record capacity.
func WithRequestPoolSize(n int) Option {
	return func(p *Pipeline) { p.pool = pool.NewFixedPool[request](n) }
}

// Pipeline is the poll-driven server request pipeline of spec.md §4.4:
// ingest bytes, extract frames via a Framer, parse address/function,
// dispatch against a Mapping, emit a response or exception, honor broadcast
// suppression.
type Pipeline struct {
	transport transport.Transport
	framer    Framer
	unitID    byte
	mapping   *Mapping

	bootloaderUnitID *byte
	deviceID         *DeviceIdentity
	serverID         []byte
	serverRunning    bool
	exceptionStatus  byte

	pool *pool.FixedPool[request]

	maxConsecutiveErrors int
	consecutiveErrors    int

	state *fsm.FSM[PipelineState, pipelineEvent]

	diag *diag.Diag
	obs  observer.Observer

	rxBuf    []byte
	respBuf  []byte

	// closed is set once Recv reports a non-recoverable transport error
	// (peer reset, EOF) — Listener.serveConn uses Done to stop polling a
	// dead connection instead of spinning on it forever.
	closed bool
}

// Done reports whether the pipeline's transport has failed terminally
// (as opposed to a transient "no data yet" condition).
func (p *Pipeline) Done() bool { return p.closed }

// New builds a Pipeline serving unitID over the given transport and framer.
func New(t transport.Transport, framer Framer, unitID byte, mapping *Mapping, opts ...Option) *Pipeline {
	p := &Pipeline{
		transport:            t,
		framer:               framer,
		unitID:               unitID,
		mapping:              mapping,
		pool:                 pool.NewFixedPool[request](16),
		maxConsecutiveErrors: DefaultMaxConsecutiveErrors,
		diag:                 diag.New(0),
		rxBuf:                make([]byte, DefaultRXBufferSize),
		respBuf:              make([]byte, DefaultResponseBuf),
		exceptionStatus:      0,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.state = fsm.New([]fsm.StateDef[PipelineState, pipelineEvent]{
		{
			State: PipelineIdle,
			Transitions: []fsm.Transition[PipelineState, pipelineEvent]{
				{Event: evBytesIn, Next: PipelineReceiving},
			},
		},
		{
			State: PipelineReceiving,
			Transitions: []fsm.Transition[PipelineState, pipelineEvent]{
				{Event: evFrameReady, Next: PipelineProcessing},
				{Event: evFrameError, Next: PipelineError},
			},
		},
		{
			State: PipelineProcessing,
			Transitions: []fsm.Transition[PipelineState, pipelineEvent]{
				{Event: evResponseSent, Next: PipelineIdle},
				{Event: evFrameError, Next: PipelineError},
			},
		},
		{
			State: PipelineError,
			Transitions: []fsm.Transition[PipelineState, pipelineEvent]{
				{Event: evErrorCleared, Next: PipelineIdle},
			},
		},
	}, PipelineIdle, 8, nil)
	return p
}

// State reports the pipeline's current coarse state.
func (p *Pipeline) State() PipelineState { return p.state.State() }

// Diag returns the pipeline's diagnostics sink.
func (p *Pipeline) Diag() *diag.Diag { return p.diag }

func (p *Pipeline) notify(event any) {
	if p.obs != nil {
		p.obs.Notify(event)
	}
}

func (p *Pipeline) transitionTo(ev pipelineEvent) {
	p.state.Enqueue(ev)
	p.state.Step()
}

// Poll drives the transport once: it reads available bytes, feeds them to
// the framer, dispatches any fully-decoded frame, and invokes the
// transport's Yield hook. Poll never blocks and must be called repeatedly.
func (p *Pipeline) Poll() {
	n, err := p.transport.Recv(p.rxBuf)
	if n > 0 {
		p.transitionTo(evBytesIn)
		p.framer.Feed(p.rxBuf[:n])
	}
	if err != nil {
		p.closed = true
		p.onError(diag.StatusTransport)
		p.transport.Yield()
		return
	}

	for {
		adu, ok := p.framer.Next()
		if !ok {
			break
		}
		p.handleFrame(adu)
	}

	p.transport.Yield()
}

func (p *Pipeline) onError(status diag.Status) {
	p.consecutiveErrors++
	p.transitionTo(evFrameError)
	if p.diag != nil {
		p.diag.Record(0, status, p.transport.Now())
	}
	if p.consecutiveErrors <= p.maxConsecutiveErrors {
		p.transitionTo(evErrorCleared)
	}
}

// handleFrame parses, dispatches, and responds to one decoded ADU, per
// spec.md §4.4 "Address/function parse" through "Response emission".
func (p *Pipeline) handleFrame(adu modbuscore.ADU) {
	p.consecutiveErrors = 0

	accepted := adu.UnitID == p.unitID || adu.UnitID == modbuscore.Broadcast
	if !accepted && p.bootloaderUnitID != nil && adu.UnitID == *p.bootloaderUnitID {
		accepted = true
	}
	if !accepted {
		if p.diag != nil {
			p.diag.Record(adu.FunctionCode, diag.StatusOtherUnit, p.transport.Now())
		}
		return
	}
	p.transitionTo(evFrameReady)

	idx, ok := p.pool.Acquire()
	if !ok {
		p.onError(diag.StatusNoResources)
		return
	}
	req := p.pool.At(idx)
	req.reset()
	req.unitID = adu.UnitID
	req.functionCode = adu.FunctionCode
	req.data = adu.Data
	req.transactionID = adu.TransactionID
	req.broadcast = adu.UnitID == modbuscore.Broadcast
	req.receivedAt = p.transport.Now()

	p.notify(observer.ServerRequestAccept{FunctionCode: req.functionCode, UnitID: req.unitID})

	status := p.respond(req)

	p.notify(observer.ServerRequestComplete{FunctionCode: req.functionCode, UnitID: req.unitID, Status: status})
	if p.diag != nil {
		p.diag.Record(req.functionCode, status, p.transport.Now())
	}

	p.pool.Release(idx)
	p.transitionTo(evResponseSent)
}

// respond dispatches req, builds the response or exception PDU, and sends
// it unless req is a broadcast, per spec.md §4.4 "Response emission" /
// "Exception emission".
func (p *Pipeline) respond(req *request) diag.Status {
	data, exc := p.dispatch(req)

	var n int
	var err error
	if exc != 0 {
		n, err = pdu.BuildException(p.respBuf, req.functionCode, exc)
	} else {
		p.respBuf[0] = req.functionCode
		copy(p.respBuf[1:], data)
		n = 1 + len(data)
	}
	if err != nil {
		return diag.StatusInvalidRequest
	}

	if req.broadcast {
		return diag.StatusOK
	}

	frameBuf := make([]byte, n+8)
	functionCode := p.respBuf[0]
	m, encErr := p.framer.Encode(frameBuf, req.unitID, functionCode, p.respBuf[1:n], req.transactionID)
	if encErr != nil {
		return diag.StatusInvalidRequest
	}
	if p.diag != nil && !req.receivedAt.IsZero() {
		p.diag.RecordTurnaround(p.transport.Now().Sub(req.receivedAt))
	}
	if _, sendErr := p.transport.Send(frameBuf[:m]); sendErr != nil {
		return diag.StatusTransport
	}
	if exc != 0 {
		return diag.StatusForException(exc)
	}
	return diag.StatusOK
}

// dispatch selects a handler by function code and returns the response
// payload (without the leading function-code byte) or a nonzero exception,
// per spec.md §4.4 "Dispatch".
func (p *Pipeline) dispatch(req *request) (resp []byte, exc modbuscore.Exception) {
	switch req.functionCode {
	case modbuscore.FuncReadCoils:
		return p.handleReadBits(req, KindCoil)
	case modbuscore.FuncReadDiscreteInputs:
		return p.handleReadBits(req, KindDiscreteInput)
	case modbuscore.FuncReadHoldingRegisters:
		return p.handleReadRegisters(req, KindHoldingRegister)
	case modbuscore.FuncReadInputRegisters:
		return p.handleReadRegisters(req, KindInputRegister)
	case modbuscore.FuncWriteSingleCoil:
		return p.handleWriteSingleCoil(req)
	case modbuscore.FuncWriteSingleRegister:
		return p.handleWriteSingleRegister(req)
	case modbuscore.FuncWriteMultipleCoils:
		return p.handleWriteMultipleCoils(req)
	case modbuscore.FuncWriteMultipleRegisters:
		return p.handleWriteMultipleRegisters(req)
	case modbuscore.FuncMaskWriteRegister:
		return p.handleMaskWrite(req)
	case modbuscore.FuncReadWriteMultiple:
		return p.handleReadWriteMultiple(req)
	case modbuscore.FuncReadExceptionStatus:
		buf := make([]byte, 1)
		n, _ := pdu.BuildReadExceptionStatusResponse(buf, p.exceptionStatus)
		return buf[:n], 0
	case modbuscore.FuncReportServerID:
		buf := make([]byte, 2+len(p.serverID))
		n, err := pdu.BuildReportServerIDResponse(buf, p.serverID, p.serverRunning)
		if err != nil {
			return nil, modbuscore.ExServerDeviceFailure
		}
		return buf[:n], 0
	case modbuscore.FuncReadDeviceID:
		return p.handleReadDeviceID(req)
	default:
		return nil, modbuscore.ExIllegalFunction
	}
}

func exceptionFromErr(err error) modbuscore.Exception {
	if exc, ok := err.(modbuscore.Exception); ok {
		return exc
	}
	return modbuscore.ExIllegalDataValue
}

func (p *Pipeline) handleReadBits(req *request, kind Kind) ([]byte, modbuscore.Exception) {
	maxQ := pdu.MaxReadBitsQuantity
	address, quantity, err := pdu.ParseReadRequest(req.data, uint16(maxQ))
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	bits, rerr := p.mapping.ReadBits(kind, address, quantity)
	if rerr != nil {
		return nil, exceptionFromErr(rerr)
	}
	buf := make([]byte, 1+byteCountBits(quantity))
	n, berr := pdu.BuildReadBitsResponse(buf, bits)
	if berr != nil {
		return nil, modbuscore.ExServerDeviceFailure
	}
	return buf[:n], 0
}

func (p *Pipeline) handleReadRegisters(req *request, kind Kind) ([]byte, modbuscore.Exception) {
	address, quantity, err := pdu.ParseReadRequest(req.data, uint16(pdu.MaxReadRegsQuantity))
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	values, rerr := p.mapping.ReadRegisters(kind, address, quantity)
	if rerr != nil {
		return nil, exceptionFromErr(rerr)
	}
	buf := make([]byte, 1+int(quantity)*2)
	n, berr := pdu.BuildReadRegistersResponse(buf, values)
	if berr != nil {
		return nil, modbuscore.ExServerDeviceFailure
	}
	return buf[:n], 0
}

func (p *Pipeline) handleWriteSingleCoil(req *request) ([]byte, modbuscore.Exception) {
	address, value, err := pdu.ParseWriteSingleCoilRequest(req.data)
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	if werr := p.mapping.WriteBits(KindCoil, address, []bool{value}); werr != nil {
		return nil, exceptionFromErr(werr)
	}
	return append([]byte(nil), req.data...), 0
}

func (p *Pipeline) handleWriteSingleRegister(req *request) ([]byte, modbuscore.Exception) {
	address, value, err := pdu.ParseWriteSingleRegisterRequest(req.data)
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	if werr := p.mapping.WriteRegisters(KindHoldingRegister, address, []uint16{value}); werr != nil {
		return nil, exceptionFromErr(werr)
	}
	return append([]byte(nil), req.data...), 0
}

func (p *Pipeline) handleWriteMultipleCoils(req *request) ([]byte, modbuscore.Exception) {
	address, bits, err := pdu.ParseWriteMultipleCoilsRequest(req.data)
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	if werr := p.mapping.WriteBits(KindCoil, address, bits); werr != nil {
		return nil, exceptionFromErr(werr)
	}
	buf := make([]byte, 4)
	n, _ := pdu.BuildWriteMultipleResponse(buf, address, uint16(len(bits)))
	return buf[:n], 0
}

func (p *Pipeline) handleWriteMultipleRegisters(req *request) ([]byte, modbuscore.Exception) {
	address, values, err := pdu.ParseWriteMultipleRegistersRequest(req.data)
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	if werr := p.mapping.WriteRegisters(KindHoldingRegister, address, values); werr != nil {
		return nil, exceptionFromErr(werr)
	}
	buf := make([]byte, 4)
	n, _ := pdu.BuildWriteMultipleResponse(buf, address, uint16(len(values)))
	return buf[:n], 0
}

// handleMaskWrite applies V' = (V AND and_mask) OR (or_mask AND NOT
// and_mask), per spec.md §4.4 "mask-write (0x16)".
func (p *Pipeline) handleMaskWrite(req *request) ([]byte, modbuscore.Exception) {
	address, andMask, orMask, err := pdu.ParseMaskWriteRegisterRequest(req.data)
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	current, rerr := p.mapping.ReadRegisters(KindHoldingRegister, address, 1)
	if rerr != nil {
		return nil, exceptionFromErr(rerr)
	}
	updated := pdu.ApplyMask(current[0], andMask, orMask)
	if werr := p.mapping.WriteRegisters(KindHoldingRegister, address, []uint16{updated}); werr != nil {
		return nil, exceptionFromErr(werr)
	}
	return append([]byte(nil), req.data...), 0
}

// handleReadWriteMultiple performs the write portion first, then the read,
// per spec.md §4.4 "read/write multiple (0x17)".
func (p *Pipeline) handleReadWriteMultiple(req *request) ([]byte, modbuscore.Exception) {
	readAddress, readQuantity, writeAddress, writeValues, err := pdu.ParseReadWriteMultipleRequest(req.data)
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	if werr := p.mapping.WriteRegisters(KindHoldingRegister, writeAddress, writeValues); werr != nil {
		return nil, exceptionFromErr(werr)
	}
	values, rerr := p.mapping.ReadRegisters(KindHoldingRegister, readAddress, readQuantity)
	if rerr != nil {
		return nil, exceptionFromErr(rerr)
	}
	buf := make([]byte, 1+int(readQuantity)*2)
	n, berr := pdu.BuildReadWriteMultipleResponse(buf, values)
	if berr != nil {
		return nil, modbuscore.ExServerDeviceFailure
	}
	return buf[:n], 0
}

func (p *Pipeline) handleReadDeviceID(req *request) ([]byte, modbuscore.Exception) {
	if p.deviceID == nil {
		return nil, modbuscore.ExIllegalFunction
	}
	code, objectID, err := pdu.ParseReadDeviceIDRequest(req.data)
	if err != nil {
		return nil, modbuscore.ExIllegalDataValue
	}
	buf := make([]byte, modbuscore.MaxPDUData)
	n, berr := p.deviceID.buildDeviceIDResponse(buf, code, objectID)
	if berr != nil {
		return nil, modbuscore.ExServerDeviceFailure
	}
	return buf[:n], 0
}

func byteCountBits(quantity uint16) int {
	return (int(quantity) + 7) / 8
}
