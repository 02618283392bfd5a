package protocol

import (
	"reflect"
	"testing"
)

func TestRPTOPacket_ParseEncodeRoundTrip(t *testing.T) {
	data := append([]byte("RPTO"), 0, 0, 0x4c, 0x24)
	data = append(data, []byte("TS1=1,2,999,1000;TS2=9")...)

	pkt, err := ParseRPTO(data)
	if err != nil {
		t.Fatalf("ParseRPTO failed: %v", err)
	}

	if pkt.RepeaterID != 0x4c24 {
		t.Errorf("expected repeater id 0x4c24, got 0x%x", pkt.RepeaterID)
	}

	wantTS1 := []uint32{1, 2, 999, 1000}
	if !reflect.DeepEqual(pkt.TS1, wantTS1) {
		t.Errorf("TS1 = %v, want %v", pkt.TS1, wantTS1)
	}

	wantTS2 := []uint32{9}
	if !reflect.DeepEqual(pkt.TS2, wantTS2) {
		t.Errorf("TS2 = %v, want %v", pkt.TS2, wantTS2)
	}

	encoded, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	roundTrip, err := ParseRPTO(encoded)
	if err != nil {
		t.Fatalf("ParseRPTO(encoded) failed: %v", err)
	}
	if !reflect.DeepEqual(roundTrip.TS1, pkt.TS1) || !reflect.DeepEqual(roundTrip.TS2, pkt.TS2) {
		t.Errorf("round trip mismatch: got %+v, want %+v", roundTrip, pkt)
	}
}

func TestRPTOPacket_EmptySlot(t *testing.T) {
	data := append([]byte("RPTO"), 0, 0, 0, 1)
	data = append(data, []byte("TS1=5;TS2=")...)

	pkt, err := ParseRPTO(data)
	if err != nil {
		t.Fatalf("ParseRPTO failed: %v", err)
	}
	if len(pkt.TS2) != 0 {
		t.Errorf("expected empty TS2, got %v", pkt.TS2)
	}
}

func TestMSTNAKPacket_RoundTrip(t *testing.T) {
	pkt := &MSTNAKPacket{RepeaterID: 312100}
	data, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := ParseMSTNAK(data)
	if err != nil {
		t.Fatalf("ParseMSTNAK failed: %v", err)
	}
	if decoded.RepeaterID != pkt.RepeaterID {
		t.Errorf("RepeaterID = %d, want %d", decoded.RepeaterID, pkt.RepeaterID)
	}
}

func TestRPTCLPacket_RoundTrip(t *testing.T) {
	pkt := &RPTCLPacket{RepeaterID: 312100}
	data, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := ParseRPTCL(data)
	if err != nil {
		t.Fatalf("ParseRPTCL failed: %v", err)
	}
	if decoded.RepeaterID != pkt.RepeaterID {
		t.Errorf("RepeaterID = %d, want %d", decoded.RepeaterID, pkt.RepeaterID)
	}
}

func TestRPTPPacket_RoundTrip(t *testing.T) {
	pkt := &RPTPPacket{RepeaterID: 312100}
	data, err := pkt.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := ParseRPTP(data)
	if err != nil {
		t.Fatalf("ParseRPTP failed: %v", err)
	}
	if decoded.RepeaterID != pkt.RepeaterID {
		t.Errorf("RepeaterID = %d, want %d", decoded.RepeaterID, pkt.RepeaterID)
	}
}
