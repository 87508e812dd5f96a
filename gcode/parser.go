package gcode

import (
	"errors"
	"fmt"
)

const mmPerInch = 25.4

var (
	// ErrChecksum is returned when the *nn suffix does not match the line
	ErrChecksum = errors.New("checksum mismatch")

	// ErrLineNumber is returned when N is not the expected next line
	ErrLineNumber = errors.New("line number out of sequence")
)

// Parser handles G-code parsing
type Parser struct{}

// NewParser creates a new G-code parser
func NewParser() *Parser {
	return &Parser{}
}

// ParseLine parses a single line of G-code against the sticky modes.
// A numbered line advances modes.NextLine; relative and inch flags are
// copied onto the command and inch values are converted to mm.
func (p *Parser) ParseLine(line string, modes *Modes) (*Command, error) {
	cmd, err := p.parse(line)
	if err != nil || cmd == nil {
		return cmd, err
	}

	if cmd.Has(SeenN) {
		if cmd.N != modes.NextLine {
			return nil, fmt.Errorf("%w: got N%d, want N%d", ErrLineNumber, cmd.N, modes.NextLine)
		}
		modes.NextLine = cmd.N + 1
	}

	cmd.Relative = modes.Relative
	cmd.Inches = modes.Inches
	if modes.Inches {
		cmd.Target.X *= mmPerInch
		cmd.Target.Y *= mmPerInch
		cmd.Target.Z *= mmPerInch
		cmd.Target.E *= mmPerInch
		cmd.Target.F *= mmPerInch
	}

	return cmd, nil
}

// IsEmergencyStop reports whether a raw line carries a valid M112.
// It ignores line numbering so that the stop is honored out of band.
func IsEmergencyStop(line string) bool {
	var p Parser
	cmd, err := p.parse(line)
	if err != nil || cmd == nil {
		return false
	}
	return cmd.Has(SeenM) && !cmd.Has(SeenG) && cmd.M == 112
}

// parse tokenizes a line into letter/value pairs and verifies its checksum
func (p *Parser) parse(line string) (*Command, error) {
	if len(line) == 0 {
		return nil, nil
	}

	i := 0
	// Skip whitespace
	for i < len(line) && (line[i] == ' ' || line[i] == '\t') {
		i++
	}

	if i >= len(line) {
		return nil, nil
	}

	cmd := &Command{}
	sum := xorRange(0, line, 0, i)

	for i < len(line) {
		c := line[i]

		// Check for comment
		if c == ';' || c == '(' {
			cmd.Comment = line[i:]
			break
		}

		if c == '*' {
			value, newPos := parseInt(line, i+1)
			if newPos <= i+1 {
				return nil, fmt.Errorf("%w: missing value after '*'", ErrChecksum)
			}
			cmd.Checksum = uint8(value)
			cmd.Seen |= SeenChecksum
			if cmd.Checksum != sum {
				return nil, fmt.Errorf("%w: got %d, computed %d", ErrChecksum, cmd.Checksum, sum)
			}
			break
		}

		sum ^= c
		i++

		if !isLetter(c) {
			continue
		}

		letter := toUpper(c)
		flag := letterFlag(letter)

		switch letter {
		case 'G', 'M', 'N':
			value, newPos := parseInt(line, i)
			if newPos <= i {
				continue
			}
			sum = xorRange(sum, line, i, newPos)
			i = newPos
			switch letter {
			case 'G':
				cmd.G = value
			case 'M':
				cmd.M = value
			case 'N':
				cmd.N = int64(value)
			}
			cmd.Seen |= flag
		default:
			value, newPos := parseFloat(line, i)
			if newPos <= i {
				continue
			}
			sum = xorRange(sum, line, i, newPos)
			i = newPos
			if flag == 0 {
				// Unknown letters are skipped
				continue
			}
			cmd.setFloat(letter, value)
			cmd.Seen |= flag
		}
	}

	return cmd, nil
}

func (cmd *Command) setFloat(letter byte, value float64) {
	switch letter {
	case 'S':
		cmd.S = value
	case 'P':
		cmd.P = value
	case 'X':
		cmd.Target.X = value
	case 'Y':
		cmd.Target.Y = value
	case 'Z':
		cmd.Target.Z = value
	case 'E':
		cmd.Target.E = value
	case 'F':
		cmd.Target.F = value
	}
}

// Checksum returns the XOR checksum hosts append as *nn
func Checksum(line string) uint8 {
	return xorRange(0, line, 0, len(line))
}

func xorRange(sum uint8, s string, from, to int) uint8 {
	for i := from; i < to; i++ {
		sum ^= s[i]
	}
	return sum
}

// parseInt parses an integer from the string starting at pos
func parseInt(s string, pos int) (int, int) {
	if pos >= len(s) {
		return 0, pos
	}

	start := pos
	negative := false
	if s[pos] == '-' {
		negative = true
		pos++
	} else if s[pos] == '+' {
		pos++
	}

	digits := pos
	value := 0

	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		value = value*10 + int(s[pos]-'0')
		pos++
	}

	if pos == digits {
		return 0, start // No digits found
	}

	if negative {
		value = -value
	}

	return value, pos
}

// parseFloat parses a floating-point number from the string starting at pos
func parseFloat(s string, pos int) (float64, int) {
	if pos >= len(s) {
		return 0, pos
	}

	start := pos
	negative := false
	if s[pos] == '-' {
		negative = true
		pos++
	} else if s[pos] == '+' {
		pos++
	}

	digits := pos
	intPart := 0.0
	fracPart := 0.0
	fracDigits := 0

	// Parse integer part
	for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
		intPart = intPart*10 + float64(s[pos]-'0')
		pos++
	}

	// Parse fractional part
	if pos < len(s) && s[pos] == '.' {
		pos++
		fracStart := pos
		for pos < len(s) && s[pos] >= '0' && s[pos] <= '9' {
			fracPart = fracPart*10.0 + float64(s[pos]-'0')
			pos++
		}
		fracDigits = pos - fracStart
	}

	if pos == digits || (pos == digits+1 && s[digits] == '.') {
		return 0, start // No valid number found
	}

	value := intPart
	if fracDigits > 0 {
		divisor := 1.0
		for i := 0; i < fracDigits; i++ {
			divisor *= 10.0
		}
		value += fracPart / divisor
	}

	if negative {
		value = -value
	}

	return value, pos
}

// isLetter checks if a byte is a letter
func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// toUpper converts a byte to uppercase
func toUpper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}
