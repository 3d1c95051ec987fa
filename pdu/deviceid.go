package pdu

import "github.com/lgili/modbuscore"

// ReadDeviceIDCode selects the conformity level of a read-device-id request,
// per spec.md §4.4.
type ReadDeviceIDCode byte

const (
	DeviceIDBasic    ReadDeviceIDCode = 0x01
	DeviceIDRegular  ReadDeviceIDCode = 0x02
	DeviceIDExtended ReadDeviceIDCode = 0x03
	DeviceIDSpecific ReadDeviceIDCode = 0x04
)

// DeviceIDObject is one vendor-info object in a device-identification
// response (vendor name, product code, ...).
type DeviceIDObject struct {
	ID    byte
	Value []byte
}

// BuildReadDeviceIDRequest encodes a read-device-identification (FC
// 0x2B/MEI 0x0E) request: MEI type, read-device-id code, object ID.
func BuildReadDeviceIDRequest(buf []byte, code ReadDeviceIDCode, objectID byte) (int, error) {
	if len(buf) < 3 {
		return 0, errInvalid("buffer too small: need 3, have %d", len(buf))
	}
	buf[0] = modbuscore.MEIDeviceID
	buf[1] = byte(code)
	buf[2] = objectID
	return 3, nil
}

// ParseReadDeviceIDRequest decodes a read-device-identification request.
func ParseReadDeviceIDRequest(data []byte) (code ReadDeviceIDCode, objectID byte, err error) {
	if len(data) != 3 {
		return 0, 0, errMalformed("read-device-id request length %d, want 3", len(data))
	}
	if data[0] != modbuscore.MEIDeviceID {
		return 0, 0, errMalformed("unexpected MEI type 0x%02X, want 0x%02X", data[0], modbuscore.MEIDeviceID)
	}
	switch ReadDeviceIDCode(data[1]) {
	case DeviceIDBasic, DeviceIDRegular, DeviceIDExtended, DeviceIDSpecific:
	default:
		return 0, 0, errMalformed("invalid read-device-id code 0x%02X", data[1])
	}
	return ReadDeviceIDCode(data[1]), data[2], nil
}

// BuildReadDeviceIDResponse encodes a read-device-identification response.
// objects is the slice of objects fitting in this response frame (the
// caller is responsible for chunking per spec.md §4.4's "more follows" rule);
// moreFollows/nextObjectID are written through as given.
func BuildReadDeviceIDResponse(buf []byte, code ReadDeviceIDCode, conformity byte, moreFollows bool, nextObjectID byte, objects []DeviceIDObject) (int, error) {
	if len(objects) > 255 {
		return 0, errInvalid("too many objects: %d", len(objects))
	}
	need := 6
	for _, o := range objects {
		if len(o.Value) > 255 {
			return 0, errInvalid("object %d value too long: %d", o.ID, len(o.Value))
		}
		need += 2 + len(o.Value)
	}
	if len(buf) < need {
		return 0, errInvalid("buffer too small: need %d, have %d", need, len(buf))
	}
	buf[0] = modbuscore.MEIDeviceID
	buf[1] = byte(code)
	buf[2] = conformity
	if moreFollows {
		buf[3] = 0xFF
	} else {
		buf[3] = 0x00
	}
	buf[4] = nextObjectID
	buf[5] = byte(len(objects))
	i := 6
	for _, o := range objects {
		buf[i] = o.ID
		buf[i+1] = byte(len(o.Value))
		copy(buf[i+2:], o.Value)
		i += 2 + len(o.Value)
	}
	return i, nil
}

// ParseReadDeviceIDResponse decodes a read-device-identification response.
func ParseReadDeviceIDResponse(data []byte) (code ReadDeviceIDCode, conformity byte, moreFollows bool, nextObjectID byte, objects []DeviceIDObject, err error) {
	if len(data) < 6 {
		return 0, 0, false, 0, nil, errMalformed("read-device-id response too short: %d", len(data))
	}
	if data[0] != modbuscore.MEIDeviceID {
		return 0, 0, false, 0, nil, errMalformed("unexpected MEI type 0x%02X", data[0])
	}
	code = ReadDeviceIDCode(data[1])
	conformity = data[2]
	moreFollows = data[3] == 0xFF
	nextObjectID = data[4]
	count := int(data[5])
	i := 6
	objects = make([]DeviceIDObject, 0, count)
	for o := 0; o < count; o++ {
		if i+2 > len(data) {
			return 0, 0, false, 0, nil, errMalformed("truncated object header at index %d", o)
		}
		id := data[i]
		n := int(data[i+1])
		i += 2
		if i+n > len(data) {
			return 0, 0, false, 0, nil, errMalformed("truncated object value at index %d", o)
		}
		objects = append(objects, DeviceIDObject{ID: id, Value: append([]byte(nil), data[i:i+n]...)})
		i += n
	}
	if i != len(data) {
		return 0, 0, false, 0, nil, errMalformed("trailing bytes: consumed %d, have %d", i, len(data))
	}
	return code, conformity, moreFollows, nextObjectID, objects, nil
}
