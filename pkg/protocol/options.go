package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// RPTCLPacket is a peer-initiated disconnect. It shares the RPTC prefix with
// the configuration frame but is disambiguated by the full 5-byte "RPTCL"
// literal (callers must check the longer prefix before falling back to RPTC).
type RPTCLPacket struct {
	RepeaterID uint32
}

func (p *RPTCLPacket) Parse(data []byte) error {
	if len(data) != RPTCLPacketSize {
		return fmt.Errorf("invalid RPTCL packet size: %d (expected %d)", len(data), RPTCLPacketSize)
	}
	if string(data[0:5]) != PacketTypeRPTCL {
		return fmt.Errorf("invalid RPTCL signature: %s", string(data[0:5]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[5:9])
	return nil
}

func (p *RPTCLPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTCLPacketSize)
	copy(data[0:5], []byte(PacketTypeRPTCL))
	binary.BigEndian.PutUint32(data[5:9], p.RepeaterID)
	return data, nil
}

// ParseRPTCL parses an RPTCL packet from raw bytes.
func ParseRPTCL(data []byte) (*RPTCLPacket, error) {
	p := &RPTCLPacket{}
	return p, p.Parse(data)
}

// MSTNAKPacket is a negative acknowledgement sent by the master in response
// to a wrong-source, auth-failure, blacklist, or malformed-config condition.
type MSTNAKPacket struct {
	RepeaterID uint32
}

func (p *MSTNAKPacket) Parse(data []byte) error {
	if len(data) != MSTNAKPacketSize {
		return fmt.Errorf("invalid MSTNAK packet size: %d (expected %d)", len(data), MSTNAKPacketSize)
	}
	if string(data[0:6]) != PacketTypeMSTNAK {
		return fmt.Errorf("invalid MSTNAK signature: %s", string(data[0:6]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[6:10])
	return nil
}

func (p *MSTNAKPacket) Encode() ([]byte, error) {
	data := make([]byte, MSTNAKPacketSize)
	copy(data[0:6], []byte(PacketTypeMSTNAK))
	binary.BigEndian.PutUint32(data[6:10], p.RepeaterID)
	return data, nil
}

// ParseMSTNAK parses an MSTNAK packet from raw bytes.
func ParseMSTNAK(data []byte) (*MSTNAKPacket, error) {
	p := &MSTNAKPacket{}
	return p, p.Parse(data)
}

// RPTPPacket is the 4-byte-prefix ping variant ("RPTP") some peer stacks
// send instead of the 7-byte "RPTPING".
type RPTPPacket struct {
	RepeaterID uint32
}

func (p *RPTPPacket) Parse(data []byte) error {
	if len(data) != RPTPPacketSize {
		return fmt.Errorf("invalid RPTP packet size: %d (expected %d)", len(data), RPTPPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTP {
		return fmt.Errorf("invalid RPTP signature: %s", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])
	return nil
}

func (p *RPTPPacket) Encode() ([]byte, error) {
	data := make([]byte, RPTPPacketSize)
	copy(data[0:4], []byte(PacketTypeRPTP))
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	return data, nil
}

// ParseRPTP parses an RPTP packet from raw bytes.
func ParseRPTP(data []byte) (*RPTPPacket, error) {
	p := &RPTPPacket{}
	return p, p.Parse(data)
}

// RPTOPacket carries per-slot talkgroup subscription options: an ASCII body
// of the form "TS1=<csv>;TS2=<csv>" following the tag and peer_id. Either
// key may be absent or empty, meaning "no change" for that slot.
type RPTOPacket struct {
	RepeaterID uint32
	TS1        []uint32
	TS2        []uint32
}

func (p *RPTOPacket) Parse(data []byte) error {
	if len(data) < RPTOMinPacketSize {
		return fmt.Errorf("invalid RPTO packet size: %d (expected at least %d)", len(data), RPTOMinPacketSize)
	}
	if string(data[0:4]) != PacketTypeRPTO {
		return fmt.Errorf("invalid RPTO signature: %s", string(data[0:4]))
	}
	p.RepeaterID = binary.BigEndian.Uint32(data[4:8])

	body := strings.TrimSpace(string(data[8:]))
	for _, clause := range strings.Split(body, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		kv := strings.SplitN(clause, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(kv[0]))
		tgs, err := parseTGList(kv[1])
		if err != nil {
			return fmt.Errorf("invalid RPTO %s value: %w", key, err)
		}
		switch key {
		case "TS1":
			p.TS1 = tgs
		case "TS2":
			p.TS2 = tgs
		}
	}
	return nil
}

func (p *RPTOPacket) Encode() ([]byte, error) {
	var b strings.Builder
	b.WriteString("TS1=")
	b.WriteString(joinTGList(p.TS1))
	b.WriteString(";TS2=")
	b.WriteString(joinTGList(p.TS2))

	data := make([]byte, 8+b.Len())
	copy(data[0:4], []byte(PacketTypeRPTO))
	binary.BigEndian.PutUint32(data[4:8], p.RepeaterID)
	copy(data[8:], b.String())
	return data, nil
}

// ParseRPTO parses an RPTO packet from raw bytes.
func ParseRPTO(data []byte) (*RPTOPacket, error) {
	p := &RPTOPacket{}
	return p, p.Parse(data)
}

func parseTGList(csv string) ([]uint32, error) {
	csv = strings.TrimSpace(csv)
	if csv == "" {
		return nil, nil
	}
	parts := strings.Split(csv, ",")
	out := make([]uint32, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid talkgroup id %q: %w", part, err)
		}
		out = append(out, uint32(v))
	}
	return out, nil
}

func joinTGList(tgs []uint32) string {
	if len(tgs) == 0 {
		return ""
	}
	parts := make([]string, len(tgs))
	for i, tg := range tgs {
		parts[i] = strconv.FormatUint(uint64(tg), 10)
	}
	return strings.Join(parts, ",")
}
