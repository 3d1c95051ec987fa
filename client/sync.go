package client

import (
	"context"

	"github.com/lgili/modbuscore"
	"github.com/lgili/modbuscore/pdu"
)

// Call is the opt-in blocking wrapper spec.md §5 describes: "higher-level
// synchronous wrappers (not part of the core) implement blocking by
// spinning on poll until completion or deadline." It is deliberately kept
// out of the Idle/Waiting/Backoff FSM itself.
func (e *Engine) Call(ctx context.Context, req Request) (Result, error) {
	done := make(chan Result, 1)
	req.Callback = func(r Result) { done <- r }

	if err := e.Submit(req); err != nil {
		return Result{}, err
	}

	for {
		select {
		case r := <-done:
			return r, nil
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
			e.Poll()
		}
	}
}

func resultErr(r Result, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if r.Exception != 0 {
		return nil, r.Exception
	}
	return r.Data, nil
}

func (e *Engine) call(ctx context.Context, unitID, functionCode byte, payload []byte) ([]byte, error) {
	r, err := e.Call(ctx, Request{UnitID: unitID, FunctionCode: functionCode, Data: payload})
	return resultErr(r, err)
}

// ReadCoils reads quantity coils starting at address from unitID.
func (e *Engine) ReadCoils(ctx context.Context, unitID byte, address, quantity uint16) ([]bool, error) {
	buf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(buf, address, quantity, pdu.MaxReadBitsQuantity)
	if err != nil {
		return nil, err
	}
	data, err := e.call(ctx, unitID, modbuscore.FuncReadCoils, buf[:n])
	if err != nil {
		return nil, err
	}
	return pdu.ParseReadBitsResponse(data, quantity)
}

// ReadDiscreteInputs reads quantity discrete inputs starting at address.
func (e *Engine) ReadDiscreteInputs(ctx context.Context, unitID byte, address, quantity uint16) ([]bool, error) {
	buf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(buf, address, quantity, pdu.MaxReadBitsQuantity)
	if err != nil {
		return nil, err
	}
	data, err := e.call(ctx, unitID, modbuscore.FuncReadDiscreteInputs, buf[:n])
	if err != nil {
		return nil, err
	}
	return pdu.ParseReadBitsResponse(data, quantity)
}

// ReadHoldingRegisters reads quantity holding registers starting at address.
func (e *Engine) ReadHoldingRegisters(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	buf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(buf, address, quantity, pdu.MaxReadRegsQuantity)
	if err != nil {
		return nil, err
	}
	data, err := e.call(ctx, unitID, modbuscore.FuncReadHoldingRegisters, buf[:n])
	if err != nil {
		return nil, err
	}
	return pdu.ParseReadRegistersResponse(data, quantity)
}

// ReadInputRegisters reads quantity input registers starting at address.
func (e *Engine) ReadInputRegisters(ctx context.Context, unitID byte, address, quantity uint16) ([]uint16, error) {
	buf := make([]byte, 4)
	n, err := pdu.BuildReadRequest(buf, address, quantity, pdu.MaxReadRegsQuantity)
	if err != nil {
		return nil, err
	}
	data, err := e.call(ctx, unitID, modbuscore.FuncReadInputRegisters, buf[:n])
	if err != nil {
		return nil, err
	}
	return pdu.ParseReadRegistersResponse(data, quantity)
}

// WriteSingleCoil writes a single coil to on or off.
func (e *Engine) WriteSingleCoil(ctx context.Context, unitID byte, address uint16, on bool) error {
	buf := make([]byte, 4)
	n, err := pdu.BuildWriteSingleCoilRequest(buf, address, on)
	if err != nil {
		return err
	}
	_, err = e.call(ctx, unitID, modbuscore.FuncWriteSingleCoil, buf[:n])
	return err
}

// WriteSingleRegister writes a single holding register.
func (e *Engine) WriteSingleRegister(ctx context.Context, unitID byte, address, value uint16) error {
	buf := make([]byte, 4)
	n, err := pdu.BuildWriteSingleRegisterRequest(buf, address, value)
	if err != nil {
		return err
	}
	_, err = e.call(ctx, unitID, modbuscore.FuncWriteSingleRegister, buf[:n])
	return err
}

// WriteMultipleCoils writes a run of coils starting at address.
func (e *Engine) WriteMultipleCoils(ctx context.Context, unitID byte, address uint16, values []bool) error {
	buf := make([]byte, 5+len(values)/8+1)
	n, err := pdu.BuildWriteMultipleCoilsRequest(buf, address, values)
	if err != nil {
		return err
	}
	_, err = e.call(ctx, unitID, modbuscore.FuncWriteMultipleCoils, buf[:n])
	return err
}

// WriteMultipleRegisters writes a run of holding registers starting at
// address.
func (e *Engine) WriteMultipleRegisters(ctx context.Context, unitID byte, address uint16, values []uint16) error {
	buf := make([]byte, 5+len(values)*2)
	n, err := pdu.BuildWriteMultipleRegistersRequest(buf, address, values)
	if err != nil {
		return err
	}
	_, err = e.call(ctx, unitID, modbuscore.FuncWriteMultipleRegisters, buf[:n])
	return err
}

// MaskWriteRegister applies a read/modify/write mask to one register.
func (e *Engine) MaskWriteRegister(ctx context.Context, unitID byte, address, andMask, orMask uint16) error {
	buf := make([]byte, 6)
	n, err := pdu.BuildMaskWriteRegisterRequest(buf, address, andMask, orMask)
	if err != nil {
		return err
	}
	_, err = e.call(ctx, unitID, modbuscore.FuncMaskWriteRegister, buf[:n])
	return err
}

// ReadWriteMultipleRegisters performs the write first, then the read,
// returning the read registers.
func (e *Engine) ReadWriteMultipleRegisters(ctx context.Context, unitID byte, readAddress, readQuantity, writeAddress uint16, writeValues []uint16) ([]uint16, error) {
	buf := make([]byte, 9+len(writeValues)*2)
	n, err := pdu.BuildReadWriteMultipleRequest(buf, readAddress, readQuantity, writeAddress, writeValues)
	if err != nil {
		return nil, err
	}
	data, err := e.call(ctx, unitID, modbuscore.FuncReadWriteMultiple, buf[:n])
	if err != nil {
		return nil, err
	}
	return pdu.ParseReadWriteMultipleResponse(data, readQuantity)
}

