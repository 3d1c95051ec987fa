package frame

import (
	"encoding/hex"

	"github.com/lgili/modbuscore/crc"
)

// ASCII framing bounds and delimiters, grounded on
// grid-x-modbus/asciiclient.go: ':' start, CRLF end, hex-encoded body.
const (
	ASCIIStart = ':'
	ASCIIEnd   = "\r\n"
	asciiMin   = 3
	asciiMax   = 513
)

// EncodeASCII writes a ':'-delimited, hex-encoded ASCII frame: unitID,
// functionCode, data, LRC, terminated by CRLF, into buf.
func EncodeASCII(buf []byte, unitID, functionCode byte, data []byte) (int, error) {
	body := make([]byte, 0, 2+len(data)+1)
	body = append(body, unitID, functionCode)
	body = append(body, data...)
	body = append(body, crc.LRCChecksum(body))

	need := 1 + hex.EncodedLen(len(body)) + len(ASCIIEnd)
	if len(buf) < need {
		return 0, errf("buffer too small: need %d, have %d", need, len(buf))
	}
	buf[0] = ASCIIStart
	encLen := hex.EncodedLen(len(body))
	hex.Encode(buf[1:1+encLen], body)
	// hex.Encode writes lowercase; Modbus ASCII conventionally uses
	// uppercase hex.
	upper(buf[1 : 1+encLen])
	copy(buf[1+encLen:], ASCIIEnd)
	return need, nil
}

func upper(b []byte) {
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - ('a' - 'A')
		}
	}
}

// DecodeASCII parses a ':'-delimited, hex-encoded ASCII frame, verifying the
// LRC, and returns the unit ID, function code, and payload.
func DecodeASCII(frm []byte) (unitID, functionCode byte, data []byte, err error) {
	if len(frm) < asciiMin || frm[0] != ASCIIStart {
		return 0, 0, nil, errf("frame too short or missing start delimiter")
	}
	hexPart := frm[1:]
	for len(hexPart) > 0 && (hexPart[len(hexPart)-1] == '\r' || hexPart[len(hexPart)-1] == '\n') {
		hexPart = hexPart[:len(hexPart)-1]
	}
	body := make([]byte, hex.DecodedLen(len(hexPart)))
	n, err := hex.Decode(body, hexPart)
	if err != nil {
		return 0, 0, nil, errf("invalid hex body: %v", err)
	}
	body = body[:n]
	if len(body) < 3 {
		return 0, 0, nil, errf("decoded body too short: %d", len(body))
	}
	want := crc.LRCChecksum(body[:len(body)-1])
	if want != body[len(body)-1] {
		return 0, 0, nil, errf("lrc mismatch")
	}
	return body[0], body[1], body[2 : len(body)-1], nil
}
