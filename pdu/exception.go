package pdu

import "github.com/lgili/modbuscore"

// BuildException encodes a 2-byte exception response: the original function
// code OR-ed with the exception bit, followed by the exception code. It
// rejects function codes that already carry the exception bit and exception
// codes outside the defined domain, per spec.md §4.1.
func BuildException(buf []byte, functionCode byte, code modbuscore.Exception) (int, error) {
	if modbuscore.IsException(functionCode) {
		return 0, errInvalid("function code 0x%02X already carries the exception bit", functionCode)
	}
	if !modbuscore.ValidException(byte(code)) {
		return 0, errInvalid("exception code 0x%02X is outside the defined domain", byte(code))
	}
	if len(buf) < 2 {
		return 0, errInvalid("buffer too small: need 2, have %d", len(buf))
	}
	buf[0] = functionCode | modbuscore.ExceptionBit
	buf[1] = byte(code)
	return 2, nil
}

// ParseException decodes a 2-byte exception response.
func ParseException(data []byte) (functionCode byte, code modbuscore.Exception, err error) {
	if len(data) != 2 {
		return 0, 0, errMalformed("exception response length %d, want 2", len(data))
	}
	if !modbuscore.IsException(data[0]) {
		return 0, 0, errMalformed("function code 0x%02X does not carry the exception bit", data[0])
	}
	return data[0] &^ modbuscore.ExceptionBit, modbuscore.Exception(data[1]), nil
}
