/*Package usbtmc implements datagram encoding and decoding for USB Test and
Measurement Class devices, enough of the bulk transfer mode to talk SCPI to an
oscilloscope.

It does not include features to support multi-packet messaging, and thus
assumes your data fits in the remote's buffer.

To send a message:
1.  Allocate a send buffer
2.  Write the header to it
3.  Write your data to it
4.  Ensure that the total transmission size is a multiple of 4 bytes before flushing

To receive a message:
1.  Create a read header and send it on the Out endpoint
2.  Read from the In endpoint
3.  Strip the header, keeping only as many bytes as it says were transferred

Write and Read on USBDevice do this, so it satisfies io.ReadWriteCloser.
*/
package usbtmc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/gousb"
)

const (
	reserved = 0x00

	headerSize = 12

	alignment = 4

	msgOut = 0x01 // DEV_DEP_MSG_OUT
	msgIn  = 0x02 // REQUEST_DEV_DEP_MSG_IN
)

// ErrNotFound is returned when no attached device matches a Resource
var ErrNotFound = errors.New("usbtmc device not found")

// bTagGen is a concurrent-safe bTag generator
type bTagGen struct {
	sync.Mutex

	value byte
}

// next returns a tag in 1..255, never 0
func (b *bTagGen) next() byte {
	b.Lock()
	defer b.Unlock()
	b.value++
	if b.value == 0 {
		b.value = 1
	}
	return b.value
}

// invbTag computes the bitwise inversion of a btag, per USBTMC standard table 1 offset 2
func invbTag(b byte) byte {
	return b ^ 0xff
}

// encBulkOutHeader creates the header defined in USBTMC standard, Table 3
func encBulkOutHeader(tag byte, datalen int) [headerSize]byte {
	/* data map by offset:
	0 MsgID
	1 bTag, unique and incrementing with each message
	2 bTagInverse
	3 Reserved
	4-7 transferSize, LSB first, exclusive of header and alignment
	8 bit 0 EOM
	9-11 reserved
	*/
	out := [headerSize]byte{}
	out[0] = msgOut
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(datalen))
	out[8] = 0x01 // always end of message
	return out
}

// encBulkInHeader creates the header defined in USBTMC standard, Table 4.
// if terminator is nil the device is told to ignore termination characters
func encBulkInHeader(tag byte, bufsize int, terminator *byte) [headerSize]byte {
	out := [headerSize]byte{}
	out[0] = msgIn
	out[1] = tag
	out[2] = invbTag(tag)
	out[3] = reserved
	binary.LittleEndian.PutUint32(out[4:8], uint32(bufsize))
	if terminator != nil {
		out[8] = 0x02
		out[9] = *terminator
	}
	return out
}

// decBulkInHeader validates a response header against the request tag and
// returns the transfer size it declares
func decBulkInHeader(hdr []byte, tag byte) (int, error) {
	if len(hdr) < headerSize {
		return 0, fmt.Errorf("only received %d bytes, need at least %d to form header", len(hdr), headerSize)
	}
	if hdr[0] != msgIn {
		return 0, fmt.Errorf("unexpected MsgID %d in response", hdr[0])
	}
	if hdr[1] != tag || hdr[2] != invbTag(tag) {
		return 0, fmt.Errorf("response bTag %d does not match request %d", hdr[1], tag)
	}
	return int(binary.LittleEndian.Uint32(hdr[4:8])), nil
}

// frameOut prepends the header and pads to a 4 byte boundary
func frameOut(tag byte, b []byte) []byte {
	hdr := encBulkOutHeader(tag, len(b))
	buf := make([]byte, 0, headerSize+len(b)+alignment)
	buf = append(buf, hdr[:]...)
	buf = append(buf, b...)
	if residual := len(buf) % alignment; residual > 0 {
		buf = append(buf, make([]byte, alignment-residual)...)
	}
	return buf
}

// Resource identifies a device by a VISA resource string such as
// USB::0x0699::0x03A4::C015987::INSTR
type Resource struct {
	Vendor  gousb.ID
	Product gousb.ID
	Serial  string
}

func (r Resource) String() string {
	return fmt.Sprintf("USB::0x%04X::0x%04X::%s::INSTR", uint16(r.Vendor), uint16(r.Product), r.Serial)
}

// ParseResource parses a VISA USB resource string.  The board number
// (USB0::) and the INSTR suffix are optional, the serial number may be empty
func ParseResource(s string) (Resource, error) {
	var r Resource
	parts := strings.Split(strings.TrimSpace(s), "::")
	if len(parts) < 3 || !strings.HasPrefix(strings.ToUpper(parts[0]), "USB") {
		return r, fmt.Errorf("%q is not a USB resource string", s)
	}
	if strings.EqualFold(parts[len(parts)-1], "INSTR") {
		parts = parts[:len(parts)-1]
	}
	vid, err := strconv.ParseUint(parts[1], 0, 16)
	if err != nil {
		return r, fmt.Errorf("vendor id in %q: %w", s, err)
	}
	pid, err := strconv.ParseUint(parts[2], 0, 16)
	if err != nil {
		return r, fmt.Errorf("product id in %q: %w", s, err)
	}
	r.Vendor = gousb.ID(vid)
	r.Product = gousb.ID(pid)
	if len(parts) > 3 {
		r.Serial = parts[3]
	}
	return r, nil
}

// USBDevice is a struct hiding the details of USB and exposing an io.ReadWriteCloser interface
type USBDevice struct {
	tags   bTagGen
	ctx    *gousb.Context
	device *gousb.Device
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	closer func()

	// Term, if not nil, asks the device to end responses on this byte
	Term *byte
}

// Open finds and claims the device described by r
func Open(r Resource) (*USBDevice, error) {
	d := &USBDevice{ctx: gousb.NewContext()}
	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == r.Vendor && desc.Product == r.Product
	})
	if err != nil && len(devs) == 0 {
		d.ctx.Close()
		return nil, err
	}
	for _, dev := range devs {
		if d.device != nil {
			dev.Close()
			continue
		}
		if r.Serial != "" {
			sn, err := dev.SerialNumber()
			if err != nil || sn != r.Serial {
				dev.Close()
				continue
			}
		}
		d.device = dev
	}
	if d.device == nil {
		d.ctx.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, r)
	}
	if err = d.claim(); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *USBDevice) claim() error {
	err := d.device.SetAutoDetach(true)
	if err != nil {
		return err
	}
	d.iface, d.closer, err = d.device.DefaultInterface()
	if err != nil {
		return err
	}
	var inNum, outNum int
	for _, ep := range d.iface.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		if ep.Direction == gousb.EndpointDirectionIn {
			inNum = ep.Number
		} else {
			outNum = ep.Number
		}
	}
	if inNum == 0 || outNum == 0 {
		return errors.New("device has no bulk endpoint pair")
	}
	d.in, err = d.iface.InEndpoint(inNum)
	if err != nil {
		return err
	}
	d.out, err = d.iface.OutEndpoint(outNum)
	return err
}

// Write sends b as one message
func (d *USBDevice) Write(b []byte) (int, error) {
	_, err := d.out.Write(frameOut(d.tags.next(), b))
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Read requests one message from the device and copies its payload into b
func (d *USBDevice) Read(b []byte) (int, error) {
	tag := d.tags.next()
	hdr := encBulkInHeader(tag, len(b), d.Term)
	_, err := d.out.Write(hdr[:])
	if err != nil {
		return 0, err
	}
	buf := make([]byte, len(b)+headerSize+alignment)
	n, err := d.in.Read(buf)
	if err != nil {
		return 0, err
	}
	size, err := decBulkInHeader(buf[:n], tag)
	if err != nil {
		return 0, err
	}
	payload := buf[headerSize:n]
	if size < len(payload) {
		payload = payload[:size]
	}
	return copy(b, payload), nil
}

// Close releases the interface, device and USB context
func (d *USBDevice) Close() error {
	if d.closer != nil {
		d.closer()
		d.closer = nil
	}
	var err error
	if d.device != nil {
		err = d.device.Close()
		d.device = nil
	}
	if d.ctx != nil {
		d.ctx.Close()
		d.ctx = nil
	}
	return err
}
