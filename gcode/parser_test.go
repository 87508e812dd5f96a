package gcode

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withChecksum(line string) string {
	return fmt.Sprintf("%s*%d", line, Checksum(line))
}

func TestParseBasicCommands(t *testing.T) {
	parser := NewParser()

	tests := []struct {
		input  string
		seen   Seen
		g, m   int
		params map[byte]float64
	}{
		{
			input:  "G0 X10 Y20",
			seen:   SeenG | SeenX | SeenY,
			g:      0,
			params: map[byte]float64{'X': 10, 'Y': 20},
		},
		{
			input:  "G1 X100.5 Y200.25 F3000",
			seen:   SeenG | SeenX | SeenY | SeenF,
			g:      1,
			params: map[byte]float64{'X': 100.5, 'Y': 200.25, 'F': 3000},
		},
		{
			input:  "G28",
			seen:   SeenG,
			g:      28,
			params: map[byte]float64{},
		},
		{
			input:  "M104 S200",
			seen:   SeenM | SeenS,
			m:      104,
			params: map[byte]float64{'S': 200},
		},
		{
			input:  "G4 P500",
			seen:   SeenG | SeenP,
			g:      4,
			params: map[byte]float64{'P': 500},
		},
		{
			input:  "G92 X0 Y0 Z0",
			seen:   SeenG | SeenX | SeenY | SeenZ,
			g:      92,
			params: map[byte]float64{'X': 0, 'Y': 0, 'Z': 0},
		},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			cmd, err := parser.ParseLine(test.input, &Modes{})
			require.NoError(t, err)
			require.NotNil(t, cmd)

			assert.Equal(t, test.seen, cmd.Seen)
			assert.Equal(t, test.g, cmd.G)
			assert.Equal(t, test.m, cmd.M)
			for param, value := range test.params {
				assert.True(t, cmd.HasParameter(param), "missing %c", param)
				assert.Equal(t, value, cmd.GetParameter(param, -1), "parameter %c", param)
			}
		})
	}
}

func TestParseNegativeNumbers(t *testing.T) {
	cmd, err := NewParser().ParseLine("G1 X-10.5 Y-20 Z+3", &Modes{})
	require.NoError(t, err)

	assert.Equal(t, -10.5, cmd.Target.X)
	assert.Equal(t, -20.0, cmd.Target.Y)
	assert.Equal(t, 3.0, cmd.Target.Z)
}

func TestParseComments(t *testing.T) {
	parser := NewParser()

	tests := []string{
		"; This is a comment",
		"G0 X10 ; Move to X10",
		"(This is a comment)",
	}

	for _, test := range tests {
		cmd, err := parser.ParseLine(test, &Modes{})
		require.NoError(t, err, test)
		require.NotNil(t, cmd, test)
		assert.NotEmpty(t, cmd.Comment)
	}

	cmd, err := parser.ParseLine("G0 X10 ; Y99", &Modes{})
	require.NoError(t, err)
	assert.False(t, cmd.HasParameter('Y'))
}

func TestParseLowercase(t *testing.T) {
	cmd, err := NewParser().ParseLine("g1 x10 y20", &Modes{})
	require.NoError(t, err)

	assert.True(t, cmd.Has(SeenG))
	assert.Equal(t, 1, cmd.G)
	assert.Equal(t, 10.0, cmd.GetParameter('x', 0))
}

func TestParseEmptyLine(t *testing.T) {
	parser := NewParser()

	for _, line := range []string{"", "   ", "\t"} {
		cmd, err := parser.ParseLine(line, &Modes{})
		assert.NoError(t, err)
		assert.Nil(t, cmd)
	}
}

func TestParseUnknownLettersSkipped(t *testing.T) {
	cmd, err := NewParser().ParseLine("G1 T1 X5 Q2.5", &Modes{})
	require.NoError(t, err)
	assert.Equal(t, SeenG|SeenX, cmd.Seen)
	assert.Equal(t, 5.0, cmd.Target.X)
}

func TestParseChecksum(t *testing.T) {
	parser := NewParser()
	modes := &Modes{NextLine: 7}

	cmd, err := parser.ParseLine(withChecksum("N7 G1 X10"), modes)
	require.NoError(t, err)
	assert.True(t, cmd.Has(SeenN|SeenChecksum))
	assert.Equal(t, int64(7), cmd.N)
	assert.Equal(t, int64(8), modes.NextLine)

	bad := fmt.Sprintf("N8 G1 X10*%d", Checksum("N8 G1 X10")^0x01)
	_, err = parser.ParseLine(bad, modes)
	assert.ErrorIs(t, err, ErrChecksum)
	assert.Equal(t, int64(8), modes.NextLine)

	_, err = parser.ParseLine("N8 G1 X10*", modes)
	assert.ErrorIs(t, err, ErrChecksum)
}

func TestParseLineNumber(t *testing.T) {
	parser := NewParser()
	modes := &Modes{NextLine: 3}

	_, err := parser.ParseLine(withChecksum("N5 G1 X1"), modes)
	assert.ErrorIs(t, err, ErrLineNumber)
	assert.Equal(t, int64(3), modes.NextLine)

	_, err = parser.ParseLine(withChecksum("N3 G1 X1"), modes)
	require.NoError(t, err)
	assert.Equal(t, int64(4), modes.NextLine)

	// Unnumbered lines leave the counter alone
	_, err = parser.ParseLine("G1 X2", modes)
	require.NoError(t, err)
	assert.Equal(t, int64(4), modes.NextLine)
}

func TestParseModes(t *testing.T) {
	parser := NewParser()

	cmd, err := parser.ParseLine("G1 X1 Y2 Z0.5 E0.1 F100", &Modes{Relative: true, Inches: true})
	require.NoError(t, err)
	assert.True(t, cmd.Relative)
	assert.True(t, cmd.Inches)
	assert.InDelta(t, 25.4, cmd.Target.X, 1e-9)
	assert.InDelta(t, 50.8, cmd.Target.Y, 1e-9)
	assert.InDelta(t, 12.7, cmd.Target.Z, 1e-9)
	assert.InDelta(t, 2.54, cmd.Target.E, 1e-9)
	assert.InDelta(t, 2540, cmd.Target.F, 1e-9)

	cmd, err = parser.ParseLine("G1 X1", &Modes{})
	require.NoError(t, err)
	assert.False(t, cmd.Relative)
	assert.Equal(t, 1.0, cmd.Target.X)
}

func TestIsEmergencyStop(t *testing.T) {
	assert.True(t, IsEmergencyStop("M112"))
	assert.True(t, IsEmergencyStop("m112 ; stop"))
	assert.True(t, IsEmergencyStop(withChecksum("N99 M112")))
	assert.False(t, IsEmergencyStop("N99 M112*0"))
	assert.False(t, IsEmergencyStop("M114"))
	assert.False(t, IsEmergencyStop("G1 M112"))
	assert.False(t, IsEmergencyStop(""))
}

func TestGetParameterDefault(t *testing.T) {
	cmd := &Command{}
	assert.Equal(t, 42.0, cmd.GetParameter('S', 42))
	assert.False(t, cmd.HasParameter('#'))
}
