package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/grid-x/serial"

	"github.com/lgili/modbuscore/client"
	"github.com/lgili/modbuscore/transport"
)

func main() {
	var opt option
	// general
	flag.StringVar(&opt.address, "address", "tcp://127.0.0.1:502", "Example: tcp://127.0.0.1:502, rtu:///dev/ttyUSB0")
	flag.IntVar(&opt.slaveID, "slaveID", 1, "Is used for intra-system routing purpose, typically for serial connections")
	flag.DurationVar(&opt.timeout, "timeout", 20*time.Second, "Modbus transaction timeout")
	// tcp
	flag.DurationVar(&opt.tcp.idleTimeout, "tcp-timeout-idle", 60*time.Second, "Idle connection close timeout")
	// rtu
	flag.IntVar(&opt.rtu.baudrate, "rtu-baudrate", 2400, "Symbol rate, e.g.: 300, 600, 1200, 2400, 4800, 9600, 19200, 38400")
	flag.IntVar(&opt.rtu.dataBits, "rtu-databits", 8, "5, 6, 7 or 8")
	flag.StringVar(&opt.rtu.parity, "rtu-parity", "E", "Parity: N - None, E - Even, O - Odd")
	flag.IntVar(&opt.rtu.stopBits, "rtu-stopbits", 1, "1 or 2")
	// rs485
	flag.BoolVar(&opt.rtu.rs485.enabled, "rs485-enable", false, "enables rs485 cfg")
	flag.DurationVar(&opt.rtu.rs485.delayRtsBeforeSend, "rs485-delayRtsBeforeSend", 0, "Delay rts before send")
	flag.DurationVar(&opt.rtu.rs485.delayRtsAfterSend, "rs485-delayRtsAfterSend", 0, "Delay rts after send")
	flag.BoolVar(&opt.rtu.rs485.rtsHighDuringSend, "rs485-rtsHighDuringSend", false, "Allow rts high during send")
	flag.BoolVar(&opt.rtu.rs485.rtsHighAfterSend, "rs485-rtsHighAfterSend", false, "Allow rts high after send")
	flag.BoolVar(&opt.rtu.rs485.rxDuringTx, "rs485-rxDuringTx", false, "Allow bidirectional rx during tx")

	var (
		register       = flag.Int("register", -1, "")
		fnCode         = flag.Int("fn-code", 0x03, "fn")
		quantity       = flag.Int("quantity", 2, "register quantity, length in bytes")
		ignoreCRCError = flag.Bool("ignore-crc", false, "ignore crc")
		eType          = flag.String("type-exec", "uint16", "")
		pType          = flag.String("type-parse", "raw", "type to parse the register result. Use 'raw' if you want to see the raw bits and bytes. Use 'all' if you want to decode the result to different commonly used formats.")
		writeValue     = flag.Float64("write-value", math.MaxFloat64, "")
		parseBigEndian = flag.Bool("order-parse-bigendian", true, "t: big, f: little")
		execBigEndian  = flag.Bool("order-exec-bigendian", true, "t: big, f: little")
		orderForced    = flag.String("order-forced", "", "explicit byte order override for write-multiple-registers: AB, BA, ABCD, DCBA, BADC, CDAB")
		filename       = flag.String("filename", "", "")
		logframe       = flag.Bool("log-frame", false, "prints received and send modbus frame to stdout")
	)

	flag.Parse()

	if len(os.Args) == 1 {
		flag.PrintDefaults()
		return
	}

	logger := log.New(os.Stdout, "", 0)
	if *register > math.MaxUint16 || *register < 0 {
		logger.Fatalf("invalid register value: %d", *register)
	}

	startReg := uint16(*register)

	if *logframe {
		opt.logLevel = slog.LevelDebug
	}

	var (
		eo binary.ByteOrder = binary.BigEndian
		po binary.ByteOrder = binary.BigEndian
	)
	if !*execBigEndian {
		eo = binary.LittleEndian
	}
	if !*parseBigEndian {
		po = binary.LittleEndian
	}

	eng, closer, err := newEngine(opt)
	if err != nil {
		logger.Fatal(err)
	}
	defer closer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opt.timeout)
	defer cancel()

	result, err := exec(ctx, eng, eo, byte(opt.slaveID), *register, *fnCode, *writeValue, *eType, *orderForced, *quantity)
	if err != nil && strings.Contains(err.Error(), "crc") && *ignoreCRCError {
		logger.Printf("ignoring crc error: %+v\n", err)
	} else if err != nil {
		logger.Fatal(err)
	}

	var res string
	switch *pType {
	case "raw":
		res, err = resultToRawString(result, int(startReg))
	case "all":
		res, err = resultToAllString(result)
	default:
		res, err = resultToString(result, po, *pType)
	}
	if err != nil {
		logger.Fatal(err)
	}

	logger.Println(res)

	if *filename != "" {
		if err := resultToFile([]byte(res), *filename); err != nil {
			logger.Fatal(err)
		}
		logger.Printf("%s successfully written\n", *filename)
	}
}

// exec dispatches one CLI invocation onto the poll-driven client.Engine
// through its blocking Call facade (client/sync.go), mirroring the
// function-code switch the teacher's grid-x-modbus CLI ran directly against
// modbus.Client.
func exec(
	ctx context.Context,
	eng *client.Engine,
	o binary.ByteOrder,
	unitID byte,
	register int,
	fnCode int,
	wval float64,
	etype string,
	forcedOrder string,
	quantity int,
) (result []byte, err error) {
	switch fnCode {
	case 0x01:
		var bits []bool
		bits, err = eng.ReadCoils(ctx, unitID, uint16(register), uint16(quantity))
		if err == nil {
			result = packBits(bits)
		}
	case 0x02:
		var bits []bool
		bits, err = eng.ReadDiscreteInputs(ctx, unitID, uint16(register), uint16(quantity))
		if err == nil {
			result = packBits(bits)
		}
	case 0x05:
		on := wval > 0
		err = eng.WriteSingleCoil(ctx, unitID, uint16(register), on)
		if err == nil {
			result = []byte{0, 0}
			if on {
				result = []byte{0xFF, 0x00}
			}
		}
	case 0x06:
		max := float64(math.MaxUint16)
		if wval > max || wval < 0 {
			err = fmt.Errorf("overflow: %f does not fit into datatype uint16", wval)
			return
		}
		err = eng.WriteSingleRegister(ctx, unitID, uint16(register), uint16(wval))
		if err == nil {
			buf := make([]byte, 2)
			binary.BigEndian.PutUint16(buf, uint16(wval))
			result = buf
		}
	case 0x10:
		var buf []byte
		buf, err = convertToBytes(etype, o, forcedOrder, wval)
		if err != nil {
			return
		}
		values := make([]uint16, len(buf)/2)
		for i := range values {
			values[i] = o.Uint16(buf[i*2:])
		}
		err = eng.WriteMultipleRegisters(ctx, unitID, uint16(register), values)
		if err == nil {
			result = buf
		}
	case 0x04:
		var regs []uint16
		regs, err = eng.ReadInputRegisters(ctx, unitID, uint16(register), uint16(quantity))
		if err == nil {
			result = packRegisters(regs)
		}
	case 0x03:
		var regs []uint16
		regs, err = eng.ReadHoldingRegisters(ctx, unitID, uint16(register), uint16(quantity))
		if err == nil {
			result = packRegisters(regs)
		}
	default:
		err = fmt.Errorf("function code %d is unsupported", fnCode)
	}
	return
}

func packBits(bits []bool) []byte {
	buf := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			buf[i/8] |= 1 << uint(i%8)
		}
	}
	return buf
}

func packRegisters(regs []uint16) []byte {
	buf := make([]byte, len(regs)*2)
	for i, r := range regs {
		binary.BigEndian.PutUint16(buf[i*2:], r)
	}
	return buf
}

func resultToFile(r []byte, filename string) error {
	return ioutil.WriteFile(filename, r, 0644)
}

func resultToRawString(r []byte, startReg int) (string, error) {
	var res string
	for i := 0; i < len(r)/2; i++ {
		reg := startReg + i
		res += fmt.Sprintf("%d\t0x%X 0x%X\t %b %b\n", reg, r[i*2], r[i*2+1], r[i*2], r[i*2+1])
	}
	return res, nil
}

func resultToAllString(result []byte) (string, error) {
	switch len(result) {
	case 2:
		bigUint16, err := resultToString(result, binary.BigEndian, "uint16")
		if err != nil {
			return "", err
		}
		bigInt16, err := resultToString(result, binary.BigEndian, "int16")
		if err != nil {
			return "", err
		}
		littleUint16, err := resultToString(result, binary.LittleEndian, "uint16")
		if err != nil {
			return "", err
		}
		littleInt16, err := resultToString(result, binary.LittleEndian, "int16")
		if err != nil {
			return "", err
		}

		return strings.Join([]string{
			fmt.Sprintf("INT16  - Big Endian (AB):    %s", bigInt16),
			fmt.Sprintf("INT16  - Little Endian (BA): %s", littleInt16),
			fmt.Sprintf("UINT16 - Big Endian (AB):    %s", bigUint16),
			fmt.Sprintf("UINT16 - Little Endian (BA): %s", littleUint16),
		}, "\n"), nil
	case 4:
		bigUint32, err := resultToString(result, binary.BigEndian, "uint32")
		if err != nil {
			return "", err
		}
		bigInt32, err := resultToString(result, binary.BigEndian, "int32")
		if err != nil {
			return "", err
		}
		bigFloat32, err := resultToString(result, binary.BigEndian, "float32")
		if err != nil {
			return "", err
		}
		littleUint32, err := resultToString(result, binary.LittleEndian, "uint32")
		if err != nil {
			return "", err
		}
		littleInt32, err := resultToString(result, binary.LittleEndian, "int32")
		if err != nil {
			return "", err
		}
		littleFloat32, err := resultToString(result, binary.LittleEndian, "float32")
		if err != nil {
			return "", err
		}

		// flip result
		result := []byte{result[1], result[0], result[3], result[2]}

		midBigUint32, err := resultToString(result, binary.BigEndian, "uint32")
		if err != nil {
			return "", err
		}
		midBigInt32, err := resultToString(result, binary.BigEndian, "int32")
		if err != nil {
			return "", err
		}
		midBigFloat32, err := resultToString(result, binary.BigEndian, "float32")
		if err != nil {
			return "", err
		}
		midLittleUint32, err := resultToString(result, binary.LittleEndian, "uint32")
		if err != nil {
			return "", err
		}
		midLittleInt32, err := resultToString(result, binary.LittleEndian, "int32")
		if err != nil {
			return "", err
		}
		midLittleFloat32, err := resultToString(result, binary.LittleEndian, "float32")
		if err != nil {
			return "", err
		}

		return strings.Join([]string{
			fmt.Sprintf("INT32  - Big Endian (ABCD):    %s", bigInt32),
			fmt.Sprintf("INT32  - Little Endian (DCBA): %s", littleInt32),
			fmt.Sprintf("INT32  - Mid-Big Endian (BADC):    %s", midBigInt32),
			fmt.Sprintf("INT32  - Mid-Little Endian (CDAB): %s", midLittleInt32),
			"",
			fmt.Sprintf("UINT32 - Big Endian (ABCD):    %s", bigUint32),
			fmt.Sprintf("UINT32 - Little Endian (DCBA): %s", littleUint32),
			fmt.Sprintf("UINT32 - Mid-Big Endian (BADC):    %s", midBigUint32),
			fmt.Sprintf("UINT32 - Mid-Little Endian (CDAB): %s", midLittleUint32),
			"",
			fmt.Sprintf("Float32 - Big Endian (ABCD):    %s", bigFloat32),
			fmt.Sprintf("Float32 - Little Endian (DCBA): %s", littleFloat32),
			fmt.Sprintf("Float32 - Mid-Big Endian (BADC):    %s", midBigFloat32),
			fmt.Sprintf("Float32 - Mid-Little Endian (CDAB): %s", midLittleFloat32),
		}, "\n"), nil

	default:
		return "", fmt.Errorf("can't convert data with length %d", len(result))
	}
}

func resultToString(r []byte, order binary.ByteOrder, varType string) (string, error) {
	switch varType {
	case "string":
		return string(r), nil
	case "uint16":
		return fmt.Sprintf("%d", order.Uint16(r)), nil
	case "int16":
		var data int16
		if err := binary.Read(bytes.NewReader(r), order, &data); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", data), nil
	case "uint32":
		return fmt.Sprintf("%d", order.Uint32(r)), nil
	case "int32":
		var data int32
		if err := binary.Read(bytes.NewReader(r), order, &data); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", data), nil
	case "uint64":
		return fmt.Sprintf("%d", order.Uint64(r)), nil
	case "int64":
		var data int64
		if err := binary.Read(bytes.NewReader(r), order, &data); err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", data), nil
	case "float32":
		var data float32
		if err := binary.Read(bytes.NewReader(r), order, &data); err != nil {
			return "", err
		}
		return fmt.Sprintf("%f", data), nil
	}
	return "", fmt.Errorf("unsupported datatype: %s", varType)
}

type option struct {
	address string
	slaveID int
	timeout time.Duration

	logLevel slog.Level

	rtu struct {
		baudrate int
		dataBits int
		parity   string
		stopBits int
		rs485    struct {
			enabled            bool
			delayRtsBeforeSend time.Duration
			delayRtsAfterSend  time.Duration
			rtsHighDuringSend  bool
			rtsHighAfterSend   bool
			rxDuringTx         bool
		}
	}

	tcp struct {
		idleTimeout time.Duration
	}
}

// newEngine builds a client.Engine wired to the transport and framer the
// address scheme selects, per spec.md §4.7's transport/framer split: rtu://
// dials a real serial line (github.com/grid-x/serial) framed as RTU;
// tcp:// dials a TCP socket framed as MBAP.
func newEngine(o option) (*client.Engine, io.Closer, error) {
	u, err := url.Parse(o.address)
	if err != nil {
		return nil, nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: o.logLevel}))

	switch u.Scheme {
	case "rtu":
		cfg := serial.Config{
			Address:  u.Path,
			BaudRate: o.rtu.baudrate,
			DataBits: o.rtu.dataBits,
			Parity:   o.rtu.parity,
			StopBits: o.rtu.stopBits,
			Timeout:  o.timeout,
			RS485: serial.RS485Config{
				Enabled:            o.rtu.rs485.enabled,
				DelayRtsBeforeSend: o.rtu.rs485.delayRtsBeforeSend,
				DelayRtsAfterSend:  o.rtu.rs485.delayRtsAfterSend,
				RtsHighDuringSend:  o.rtu.rs485.rtsHighDuringSend,
				RtsHighAfterSend:   o.rtu.rs485.rtsHighAfterSend,
				RxDuringTx:         o.rtu.rs485.rxDuringTx,
			},
		}
		t := transport.NewSerialPort(cfg, logger)
		if err := t.Connect(); err != nil {
			return nil, nil, err
		}
		framer := client.NewRTUFramer(client.DefaultRXBufferSize)
		return client.New(t, framer, true), t, nil
	case "tcp":
		t := transport.NewTCP(u.Host, logger)
		t.IdleTimeout = o.tcp.idleTimeout
		if err := t.Connect(); err != nil {
			return nil, nil, err
		}
		framer := client.NewMBAPFramer(client.DefaultRXBufferSize)
		return client.New(t, framer, false), t, nil
	}
	return nil, nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
}

// convertToBytes encodes wval as etype's wire representation. With no
// forcedOrder it honors order the way the teacher's CLI always did (natural
// byte order, reversed end-to-end for little-endian); forcedOrder instead
// picks one of the word/byte-swap layouts PLCs commonly expect for 32-bit
// values (AB/BA for 16-bit, ABCD/DCBA/BADC/CDAB for 32-bit).
func convertToBytes(etype string, order binary.ByteOrder, forcedOrder string, wval float64) ([]byte, error) {
	width, err := byteWidth(etype)
	if err != nil {
		return nil, err
	}

	if forcedOrder != "" {
		if _, ok := bytePermutations(width)[forcedOrder]; !ok {
			return nil, fmt.Errorf("invalid forced byte order: %s", forcedOrder)
		}
	}

	natural, err := naturalBytes(etype, wval)
	if err != nil {
		return nil, err
	}

	if forcedOrder != "" {
		perm := bytePermutations(width)[forcedOrder]
		out := make([]byte, width)
		for i, p := range perm {
			out[i] = natural[p]
		}
		return out, nil
	}

	if order == binary.LittleEndian {
		out := make([]byte, width)
		for i := range natural {
			out[i] = natural[width-1-i]
		}
		return out, nil
	}
	return natural, nil
}

func byteWidth(etype string) (int, error) {
	switch etype {
	case "int16", "uint16":
		return 2, nil
	case "int32", "uint32", "float32":
		return 4, nil
	case "float64":
		return 8, nil
	}
	return 0, fmt.Errorf("unsupported datatype: %s", etype)
}

// naturalBytes encodes wval big-endian ("ABCD" order) for etype, with the
// same overflow checks the teacher's CLI applied per data type.
func naturalBytes(etype string, wval float64) ([]byte, error) {
	switch etype {
	case "uint16":
		if wval < 0 || wval > float64(math.MaxUint16) {
			return nil, fmt.Errorf("overflow: %f does not fit into datatype %s", wval, etype)
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(wval))
		return buf, nil
	case "int16":
		if wval < float64(math.MinInt16) || wval > float64(math.MaxUint16) {
			return nil, fmt.Errorf("overflow: %f does not fit into datatype %s", wval, etype)
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int64(wval)))
		return buf, nil
	case "uint32":
		if wval < 0 || wval > float64(math.MaxUint32) {
			return nil, fmt.Errorf("overflow: %f does not fit into datatype %s", wval, etype)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(wval))
		return buf, nil
	case "int32":
		if wval < float64(math.MinInt32) || wval > float64(math.MaxUint32) {
			return nil, fmt.Errorf("overflow: %f does not fit into datatype %s", wval, etype)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, uint32(int64(wval)))
		return buf, nil
	case "float32":
		if math.Abs(wval) > float64(math.MaxFloat32) {
			return nil, fmt.Errorf("overflow: %f does not fit into datatype %s", wval, etype)
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(wval)))
		return buf, nil
	case "float64":
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, math.Float64bits(wval))
		return buf, nil
	}
	return nil, fmt.Errorf("unsupported datatype: %s", etype)
}

// bytePermutations maps a forced byte-order label to the natural-bytes
// index each output position reads from.
func bytePermutations(width int) map[string][]int {
	switch width {
	case 2:
		return map[string][]int{"AB": {0, 1}, "BA": {1, 0}}
	case 4:
		return map[string][]int{
			"ABCD": {0, 1, 2, 3},
			"DCBA": {3, 2, 1, 0},
			"BADC": {1, 0, 3, 2},
			"CDAB": {2, 3, 0, 1},
		}
	}
	return map[string][]int{}
}
