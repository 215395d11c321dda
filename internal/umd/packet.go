package umd

import (
	"encoding/binary"
	"fmt"
)

// Color is the small closed enumeration a UMD frame encodes each tally
// lamp as (spec.md §6: "off | red | green | amber").
type Color uint8

const (
	ColorOff Color = iota
	ColorRed
	ColorGreen
	ColorAmber
)

func (c Color) String() string {
	switch c {
	case ColorOff:
		return "off"
	case ColorRed:
		return "red"
	case ColorGreen:
		return "green"
	case ColorAmber:
		return "amber"
	default:
		return fmt.Sprintf("color(%d)", uint8(c))
	}
}

// Entry is one tally index's fields within a frame (spec.md §3 TallyKey,
// §6 UMD protocol).
type Entry struct {
	TallyIndex uint16
	LH         Color
	RH         Color
	Txt        Color
	Text       string
}

// Frame is one UMD datagram: a screen index shared by every entry it
// carries, per the tslumd schema referenced in spec.md §6.
type Frame struct {
	Screen  uint16
	Entries []Entry
}

// wire layout, big-endian throughout:
//
//	uint16 screen
//	uint16 entryCount
//	entryCount *
//	  uint16 tallyIndex
//	  byte   lhColor
//	  byte   rhColor
//	  byte   txtColor
//	  uint16 textLen
//	  byte   reserved
//	  textLen bytes of UTF-8 text
const headerLen = 4
const entryFixedLen = 8

// Unmarshal parses a single UMD datagram. Malformed input is reported so
// the caller can count and drop it without tearing down the socket
// (spec.md §4.G).
func Unmarshal(data []byte) (Frame, error) {
	if len(data) < headerLen {
		return Frame{}, fmt.Errorf("umd: frame too short: %d bytes", len(data))
	}
	screen := binary.BigEndian.Uint16(data[0:2])
	count := binary.BigEndian.Uint16(data[2:4])

	entries := make([]Entry, 0, count)
	pos := headerLen
	for i := 0; i < int(count); i++ {
		if pos+entryFixedLen > len(data) {
			return Frame{}, fmt.Errorf("umd: truncated entry %d", i)
		}
		tallyIndex := binary.BigEndian.Uint16(data[pos : pos+2])
		lh := Color(data[pos+2])
		rh := Color(data[pos+3])
		txt := Color(data[pos+4])
		textLen := binary.BigEndian.Uint16(data[pos+5 : pos+7])
		// byte pos+7 reserved, kept for 8-byte alignment
		pos += entryFixedLen

		if pos+int(textLen) > len(data) {
			return Frame{}, fmt.Errorf("umd: truncated text for entry %d", i)
		}
		text := string(data[pos : pos+int(textLen)])
		pos += int(textLen)

		entries = append(entries, Entry{
			TallyIndex: tallyIndex,
			LH:         lh,
			RH:         rh,
			Txt:        txt,
			Text:       text,
		})
	}

	return Frame{Screen: screen, Entries: entries}, nil
}

// Marshal serializes a frame, used by tests to synthesize datagrams.
func (f Frame) Marshal() []byte {
	size := headerLen
	for _, e := range f.Entries {
		size += entryFixedLen + len(e.Text)
	}
	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:2], f.Screen)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(f.Entries)))

	pos := headerLen
	for _, e := range f.Entries {
		binary.BigEndian.PutUint16(buf[pos:pos+2], e.TallyIndex)
		buf[pos+2] = byte(e.LH)
		buf[pos+3] = byte(e.RH)
		buf[pos+4] = byte(e.Txt)
		binary.BigEndian.PutUint16(buf[pos+5:pos+7], uint16(len(e.Text)))
		pos += entryFixedLen
		copy(buf[pos:pos+len(e.Text)], e.Text)
		pos += len(e.Text)
	}
	return buf
}
