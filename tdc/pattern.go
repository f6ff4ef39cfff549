package tdc

import (
	"fmt"
	"strconv"
	"strings"
)

// NumChannels is the number of detector inputs
const NumChannels = 4

// ChannelNames holds the name of each input, CH1 first
var ChannelNames = [NumChannels]string{"CH1", "CH2", "CH3", "CH4"}

// Pattern is the 4-bit detector pattern of an event.  Bit 0 is CH1, bit 3 is CH4
type Pattern uint8

// String renders the pattern as four bits, CH4 first, e.g. "0110"
func (p Pattern) String() string {
	return fmt.Sprintf("%04b", uint8(p)&patternMask)
}

// Int renders the pattern as an integer
func (p Pattern) Int() int {
	return int(p & patternMask)
}

// Channels returns the names of the inputs that fired, highest bit first
func (p Pattern) Channels() []string {
	out := []string{}
	for i := NumChannels - 1; i >= 0; i-- {
		if p&(1<<uint(i)) != 0 {
			out = append(out, ChannelNames[i])
		}
	}
	return out
}

// ParsePattern parses a four character bit string such as "0110"
func ParsePattern(s string) (Pattern, error) {
	s = strings.TrimSpace(s)
	if len(s) != NumChannels {
		return 0, fmt.Errorf("pattern %q must be %d bits", s, NumChannels)
	}
	v, err := strconv.ParseUint(s, 2, 8)
	if err != nil {
		return 0, fmt.Errorf("pattern %q: %w", s, err)
	}
	return Pattern(v), nil
}

// PatternFormat selects how patterns are rendered
type PatternFormat int

const (
	// Bits renders patterns as "0110"
	Bits PatternFormat = iota

	// Integer renders patterns as 6
	Integer
)

// ParsePatternFormat maps "bits" or "int" to a PatternFormat.  The empty
// string is Bits.
func ParsePatternFormat(s string) (PatternFormat, error) {
	switch strings.ToLower(s) {
	case "", "bits", "str", "string":
		return Bits, nil
	case "int", "integer":
		return Integer, nil
	}
	return Bits, fmt.Errorf("unknown pattern format %q, use bits or int", s)
}

// Render returns the pattern as a string or an int
func (f PatternFormat) Render(p Pattern) interface{} {
	if f == Integer {
		return p.Int()
	}
	return p.String()
}

// Counts holds how many events each input took part in, CH1 first
type Counts [NumChannels]int

// ExpandChannels returns the channel names active in each pattern, CH4
// first, and how many times each channel was active across all of them
func ExpandChannels(patterns []Pattern) ([][]string, Counts) {
	var counts Counts
	out := make([][]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.Channels()
		for bit := 0; bit < NumChannels; bit++ {
			if p&(1<<uint(bit)) != 0 {
				counts[bit]++
			}
		}
	}
	return out, counts
}

// Map returns the counts keyed by channel name
func (c Counts) Map() map[string]int {
	m := make(map[string]int, NumChannels)
	for i, n := range c {
		m[ChannelNames[i]] = n
	}
	return m
}
