// Package modbuscore provides the shared Modbus protocol types — function
// codes, exception codes, the Protocol Data Unit, and the Application Data
// Unit view — used by the pdu, frame, client, and server packages.
package modbuscore

import "fmt"

// Function codes supported by the core, per spec.md §3.
const (
	FuncReadCoils              = 0x01
	FuncReadDiscreteInputs     = 0x02
	FuncReadHoldingRegisters   = 0x03
	FuncReadInputRegisters     = 0x04
	FuncWriteSingleCoil        = 0x05
	FuncWriteSingleRegister    = 0x06
	FuncReadExceptionStatus    = 0x07
	FuncWriteMultipleCoils     = 0x0F
	FuncWriteMultipleRegisters = 0x10
	FuncReportServerID         = 0x11
	FuncMaskWriteRegister      = 0x16
	FuncReadWriteMultiple      = 0x17
	FuncReadDeviceID           = 0x2B

	// MEIDeviceID is the MODBUS Encapsulated Interface type carried by
	// FuncReadDeviceID requests (sub-function 0x0E).
	MEIDeviceID = 0x0E
)

// ExceptionBit, OR-ed into a request's function code, marks an exception
// response.
const ExceptionBit byte = 0x80

// IsException reports whether code carries the exception bit.
func IsException(code byte) bool {
	return code&ExceptionBit != 0
}

// Broadcast is the reserved unit ID meaning "all servers, no response
// expected".
const Broadcast = 0

// Exception codes defined by the Modbus specification, spec.md §3.
type Exception byte

const (
	ExIllegalFunction                    Exception = 0x01
	ExIllegalDataAddress                 Exception = 0x02
	ExIllegalDataValue                   Exception = 0x03
	ExServerDeviceFailure                Exception = 0x04
	ExAcknowledge                        Exception = 0x05
	ExServerDeviceBusy                   Exception = 0x06
	ExNegativeAcknowledge                Exception = 0x07
	ExMemoryParityError                  Exception = 0x08
	ExGatewayPathUnavailable             Exception = 0x0A
	ExGatewayTargetDeviceFailedToRespond Exception = 0x0B
)

// Error implements the error interface, returning a human-readable string.
func (e Exception) Error() string {
	switch e {
	case ExIllegalFunction:
		return "modbus: illegal function"
	case ExIllegalDataAddress:
		return "modbus: illegal data address"
	case ExIllegalDataValue:
		return "modbus: illegal data value"
	case ExServerDeviceFailure:
		return "modbus: server device failure"
	case ExAcknowledge:
		return "modbus: acknowledge"
	case ExServerDeviceBusy:
		return "modbus: server device busy"
	case ExNegativeAcknowledge:
		return "modbus: negative acknowledge"
	case ExMemoryParityError:
		return "modbus: memory parity error"
	case ExGatewayPathUnavailable:
		return "modbus: gateway path unavailable"
	case ExGatewayTargetDeviceFailedToRespond:
		return "modbus: gateway target device failed to respond"
	}
	return fmt.Sprintf("modbus: exception 0x%02X", byte(e))
}

// ValidException reports whether code is one of the defined exception codes
// (0x01-0x08, or the gateway codes 0x0A-0x0B).
func ValidException(code byte) bool {
	switch Exception(code) {
	case ExIllegalFunction, ExIllegalDataAddress, ExIllegalDataValue,
		ExServerDeviceFailure, ExAcknowledge, ExServerDeviceBusy,
		ExNegativeAcknowledge, ExMemoryParityError,
		ExGatewayPathUnavailable, ExGatewayTargetDeviceFailedToRespond:
		return true
	}
	return false
}

// PDU is the Protocol Data Unit: function code plus function-specific data,
// independent of framing. Maximum 252 bytes of Data (253 total with the
// function byte).
type PDU struct {
	FunctionCode byte
	Data         []byte
}

// MaxPDUData is the largest payload a PDU.Data may hold.
const MaxPDUData = 252

// MaxPDUSize is the largest a fully-encoded PDU (function byte + Data) may
// be.
const MaxPDUSize = MaxPDUData + 1

// ADU is an immutable borrowed view over an encoded (or to-be-encoded) frame
// body: the transport-unit address, the function code, and the payload. Data
// may alias caller-owned storage, which must then outlive the view; Clone
// returns a copy that owns its Data.
type ADU struct {
	UnitID       byte
	FunctionCode byte
	Data         []byte
	// TransactionID correlates MBAP/TCP requests to responses; zero/unused
	// for RTU.
	TransactionID uint16
}

// PDU extracts the ADU's protocol data unit.
func (a ADU) PDU() PDU {
	return PDU{FunctionCode: a.FunctionCode, Data: a.Data}
}

// Clone returns an ADU whose Data no longer aliases the original backing
// storage.
func (a ADU) Clone() ADU {
	out := a
	out.Data = append([]byte(nil), a.Data...)
	return out
}

// DataSizeError reports a mismatch between a declared and actual byte count,
// e.g. a register response whose byte-count field disagrees with its payload
// length.
type DataSizeError struct {
	Where         string
	ExpectedBytes int
	ActualBytes   int
}

func (e *DataSizeError) Error() string {
	return fmt.Sprintf("modbus: %s: expected %d bytes, got %d", e.Where, e.ExpectedBytes, e.ActualBytes)
}
