// Package tdc decodes time-tagged event streams from a four channel
// time-to-digital converter and reads them out through the Arduino UNO that
// hosts it.
//
// The converter emits 32-bit words.  The upper 27 bits are a coarse counter
// of 2 ns ticks that rolls over every 2^27 ticks, the lower 5 bits are a
// dummy flag (bit 4) and the detector pattern (bits 3..0, CH4..CH1).
package tdc

import (
	"encoding/binary"
	"fmt"
)

const (
	// WordSize is the size of one event word in bytes
	WordSize = 4

	// CounterBits is the width of the coarse counter
	CounterBits = 27

	// Period is the number of ticks between counter rollovers
	Period = 1 << CounterBits

	// TickNS is the duration of one counter tick in nanoseconds
	TickNS = 2

	trailerBits = 5
	trailerMask = 0x1F
	dummyFlag   = 0x10
	patternMask = 0x0F
)

// FormatError is returned when a stream cannot be split into whole words
type FormatError struct {
	// Len is the length of the offending stream in bytes
	Len int
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("tdc stream of %d bytes is not a whole number of %d byte words (%d trailing)", e.Len, WordSize, e.Len%WordSize)
}

// Event is a single detection
type Event struct {
	// Time is the time since the counter started, in ns, rollovers included
	Time uint64 `json:"t"`

	// Pattern holds the channels which fired
	Pattern Pattern `json:"pattern"`
}

// Word is one raw word of the stream
type Word struct {
	// Raw is the 27-bit counter value
	Raw uint32

	// Dummy is true when the flag bit is set and the word carries no event
	Dummy bool

	// Pattern is the detector pattern
	Pattern Pattern
}

// Uint32 packs the word
func (w Word) Uint32() uint32 {
	v := w.Raw<<trailerBits | uint32(w.Pattern)&patternMask
	if w.Dummy {
		v |= dummyFlag
	}
	return v
}

func unpack(v uint32) Word {
	trailer := v & trailerMask
	return Word{
		Raw:     v >> trailerBits,
		Dummy:   trailer&dummyFlag != 0,
		Pattern: Pattern(trailer & patternMask)}
}

// Words splits a stream into words, in stream order.
//
// The device transmits the stream byte-swapped.  The whole stream is
// reversed, cut into words read most significant byte first, and the list of
// words is reversed back into stream order.
func Words(stream []byte) ([]Word, error) {
	if len(stream)%WordSize != 0 {
		return nil, &FormatError{Len: len(stream)}
	}
	l := len(stream)
	rev := make([]byte, l)
	for i, b := range stream {
		rev[l-1-i] = b
	}
	n := l / WordSize
	out := make([]Word, n)
	for i := 0; i < n; i++ {
		chunk := rev[i*WordSize : (i+1)*WordSize]
		out[n-1-i] = unpack(binary.BigEndian.Uint32(chunk))
	}
	return out, nil
}

// Decode converts a raw stream into events.
//
// A rollover is counted whenever a word's counter value is below that of the
// word before it, dummy words included.  Dummy words produce no event.  More
// than one full period between two consecutive words cannot be detected and
// is counted as a single rollover.
func Decode(stream []byte) ([]Event, error) {
	words, err := Words(stream)
	if err != nil {
		return nil, err
	}
	return DecodeWords(words), nil
}

// DecodeWords applies rollover correction to words already split from a stream
func DecodeWords(words []Word) []Event {
	var (
		rollovers uint64
		prev      uint32
		havePrev  bool
	)
	events := make([]Event, 0, len(words))
	for _, w := range words {
		if havePrev && w.Raw < prev {
			rollovers++
		}
		prev = w.Raw
		havePrev = true
		if w.Dummy {
			continue
		}
		ticks := uint64(w.Raw) + rollovers*Period
		events = append(events, Event{Time: ticks * TickNS, Pattern: w.Pattern})
	}
	return events
}

// EncodeWords packs words into the byte-swapped wire layout, the inverse of Words
func EncodeWords(words []Word) []byte {
	n := len(words)
	rev := make([]byte, n*WordSize)
	for i, w := range words {
		binary.BigEndian.PutUint32(rev[(n-1-i)*WordSize:], w.Uint32())
	}
	l := len(rev)
	out := make([]byte, l)
	for i, b := range rev {
		out[l-1-i] = b
	}
	return out
}

// Encode packs events into the wire layout.  Dummy words are inserted where
// more than one rollover separates two events, so that Decode reproduces the
// events exactly.  Events must be in non-decreasing time order and have
// times that are a whole number of ticks.
func Encode(events []Event) ([]byte, error) {
	words, err := EventWords(events)
	if err != nil {
		return nil, err
	}
	return EncodeWords(words), nil
}

// EventWords is Encode without the final packing step
func EventWords(events []Event) ([]Word, error) {
	var (
		words     []Word
		rollovers uint64
		prev      uint32
		havePrev  bool
	)
	push := func(w Word) {
		words = append(words, w)
		prev = w.Raw
		havePrev = true
	}
	for i, e := range events {
		if e.Time%TickNS != 0 {
			return nil, fmt.Errorf("event %d at %d ns is not a whole number of %d ns ticks", i, e.Time, TickNS)
		}
		ticks := e.Time / TickNS
		epoch := ticks / Period
		raw := uint32(ticks % Period)
		if epoch < rollovers {
			return nil, fmt.Errorf("event %d at %d ns is earlier than the event before it", i, e.Time)
		}
		for rollovers < epoch {
			if rollovers+1 == epoch && havePrev && raw < prev {
				// the event word itself marks the rollover
				break
			}
			if !havePrev || prev == 0 {
				push(Word{Raw: Period - 1, Dummy: true})
			}
			push(Word{Raw: 0, Dummy: true})
			rollovers++
		}
		if havePrev && raw < prev {
			rollovers++
		}
		if rollovers != epoch {
			return nil, fmt.Errorf("event %d at %d ns is earlier than the event before it", i, e.Time)
		}
		push(Word{Raw: raw, Pattern: e.Pattern & patternMask})
	}
	return words, nil
}

// Times returns the time of each event in ns
func Times(events []Event) []uint64 {
	out := make([]uint64, len(events))
	for i, e := range events {
		out[i] = e.Time
	}
	return out
}

// Patterns returns the pattern of each event
func Patterns(events []Event) []Pattern {
	out := make([]Pattern, len(events))
	for i, e := range events {
		out[i] = e.Pattern
	}
	return out
}
