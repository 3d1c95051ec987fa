package server

import "github.com/lgili/modbuscore/pdu"

// Device identification object IDs defined by the Modbus specification,
// covering the basic and regular conformity levels.
const (
	ObjectVendorName        byte = 0x00
	ObjectProductCode       byte = 0x01
	ObjectMajorMinorVersion byte = 0x02
	ObjectVendorURL         byte = 0x03
	ObjectProductName       byte = 0x04
	ObjectModelName         byte = 0x05
	ObjectUserApplicationName byte = 0x06
)

// DeviceIdentity is the server's read-device-identification payload
// (FC 0x2B/0x0E), per spec.md §4.4. Objects are keyed by ID; Basic and
// Regular conformity requests return the fixed sub-ranges the spec defines
// (0x00-0x02 and 0x00-0x06); Specific returns exactly the one requested
// object.
type DeviceIdentity struct {
	Objects map[byte][]byte
}

// NewDeviceIdentity builds an identity from the conventional vendor/product
// fields; additional objects can be added directly via Objects.
func NewDeviceIdentity(vendorName, productCode, version, vendorURL, productName, modelName, appName string) *DeviceIdentity {
	return &DeviceIdentity{Objects: map[byte][]byte{
		ObjectVendorName:          []byte(vendorName),
		ObjectProductCode:         []byte(productCode),
		ObjectMajorMinorVersion:   []byte(version),
		ObjectVendorURL:           []byte(vendorURL),
		ObjectProductName:         []byte(productName),
		ObjectModelName:           []byte(modelName),
		ObjectUserApplicationName: []byte(appName),
	}}
}

// objectsForConformity returns the ordered object IDs a given conformity
// level/starting object ID walks, per spec.md §4.4: basic covers 0x00-0x02,
// regular 0x00-0x06, specific exactly one.
func (d *DeviceIdentity) objectsForConformity(code pdu.ReadDeviceIDCode, objectID byte) []byte {
	switch code {
	case pdu.DeviceIDBasic:
		return rangeIDs(0x00, 0x02, objectID)
	case pdu.DeviceIDRegular:
		return rangeIDs(0x00, 0x06, objectID)
	case pdu.DeviceIDSpecific:
		return []byte{objectID}
	default:
		return nil
	}
}

func rangeIDs(lo, hi, start byte) []byte {
	if start < lo {
		start = lo
	}
	out := make([]byte, 0, int(hi-start)+1)
	for id := start; id <= hi; id++ {
		out = append(out, id)
	}
	return out
}

// buildDeviceIDResponse assembles as many requested objects as fit in one
// response frame, setting moreFollows/nextObjectID when the full set does
// not, per spec.md §4.4's "more follows" continuation rule.
func (d *DeviceIdentity) buildDeviceIDResponse(buf []byte, code pdu.ReadDeviceIDCode, objectID byte) (int, error) {
	ids := d.objectsForConformity(code, objectID)

	var objects []pdu.DeviceIDObject
	moreFollows := false
	nextObjectID := byte(0)

	for i, id := range ids {
		val := d.Objects[id]
		candidate := append(append([]pdu.DeviceIDObject(nil), objects...), pdu.DeviceIDObject{ID: id, Value: val})
		n, err := pdu.BuildReadDeviceIDResponse(buf, code, conformityByte(code), false, 0, candidate)
		if err != nil {
			// This object does not fit in the remaining frame space;
			// stop here and report the rest via "more follows".
			if i == 0 {
				return 0, err // not even one object fits: caller-level buffer error
			}
			moreFollows = true
			nextObjectID = id
			break
		}
		_ = n
		objects = candidate
	}

	return pdu.BuildReadDeviceIDResponse(buf, code, conformityByte(code), moreFollows, nextObjectID, objects)
}

func conformityByte(code pdu.ReadDeviceIDCode) byte {
	return byte(code)
}
