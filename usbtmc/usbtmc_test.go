package usbtmc

import (
	"testing"
)

func TestParseResource(t *testing.T) {
	r, err := ParseResource("USB::0x0699::0x03A4::C015987::INSTR")
	if err != nil {
		t.Fatal(err)
	}
	if r.Vendor != 0x0699 || r.Product != 0x03A4 || r.Serial != "C015987" {
		t.Errorf("parsed %+v", r)
	}
	if r.String() != "USB::0x0699::0x03A4::C015987::INSTR" {
		t.Errorf("round trip gave %s", r)
	}
	r, err = ParseResource("USB0::1689::932")
	if err != nil {
		t.Fatal(err)
	}
	if r.Vendor != 1689 || r.Serial != "" {
		t.Errorf("parsed %+v", r)
	}
	for _, bad := range []string{"GPIB::12::INSTR", "USB::zz::0x1", "USB::0x1"} {
		if _, err = ParseResource(bad); err == nil {
			t.Errorf("expected %q to be rejected", bad)
		}
	}
}

func TestBulkOutFraming(t *testing.T) {
	buf := frameOut(7, []byte("*IDN?"))
	if len(buf)%alignment != 0 {
		t.Errorf("frame of %d bytes is not aligned", len(buf))
	}
	if buf[0] != msgOut || buf[1] != 7 || buf[2] != 0xF8 {
		t.Errorf("bad header prefix % x", buf[:4])
	}
	if buf[4] != 5 || buf[5] != 0 || buf[8] != 1 {
		t.Errorf("bad size or EOM in header % x", buf[:12])
	}
	if string(buf[12:17]) != "*IDN?" {
		t.Errorf("payload not after header: %q", buf[12:17])
	}
}

func TestBulkInHeader(t *testing.T) {
	term := byte('\n')
	hdr := encBulkInHeader(3, 1500, &term)
	if hdr[8] != 0x02 || hdr[9] != '\n' {
		t.Errorf("termchar not requested: % x", hdr)
	}
	// a device response echoes MsgID and tag
	resp := append(hdr[:], []byte("1.5\n")...)
	resp[4], resp[5] = 4, 0
	size, err := decBulkInHeader(resp, 3)
	if err != nil {
		t.Fatal(err)
	}
	if size != 4 {
		t.Errorf("expected transfer size 4, got %d", size)
	}
	if _, err = decBulkInHeader(resp, 4); err == nil {
		t.Error("expected a tag mismatch error")
	}
}

func TestBTagNeverZero(t *testing.T) {
	var g bTagGen
	for i := 0; i < 600; i++ {
		if g.next() == 0 {
			t.Fatal("bTag 0 is reserved")
		}
	}
}
