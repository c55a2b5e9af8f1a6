package format

import (
	"fmt"
	"strings"
)

// Mode is a RFC 3640 mode.
type Mode int

// modes.
const (
	// high bit-rate AAC.
	ModeAACHbr Mode = iota

	// low bit-rate AAC.
	ModeAACLbr
)

var modeLabels = map[Mode]string{
	ModeAACHbr: "AAC-hbr",
	ModeAACLbr: "AAC-lbr",
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	if l, ok := modeLabels[m]; ok {
		return l
	}
	return "unknown"
}

// ParseMode parses a mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "aac-hbr", "aac_hbr":
		return ModeAACHbr, nil

	case "aac-lbr", "aac_lbr":
		return ModeAACLbr, nil
	}

	return 0, fmt.Errorf("unsupported AAC mode: %v", s)
}
