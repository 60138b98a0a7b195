package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressTracker_OnLine(t *testing.T) {
	tests := []struct {
		name         string
		line         string
		wantFraction bool
		fraction     float64
	}{
		{
			name:         "typical progress line",
			line:         "45.2% of 10MiB at 1.2MiB/s ETA 00:10",
			wantFraction: true,
			fraction:     0.452,
		},
		{
			name:         "download prefix",
			line:         "[download]  12.0% of ~ 120.50MiB at  3.21MiB/s ETA 00:34 (frag 3/20)",
			wantFraction: true,
			fraction:     0.12,
		},
		{
			name:         "comma decimal separator",
			line:         "[download]  45,5% of 10MiB ETA 00:10",
			wantFraction: true,
			fraction:     0.455,
		},
		{
			name:         "lowercase eta",
			line:         "7% done eta 1m",
			wantFraction: true,
			fraction:     0.07,
		},
		{
			name:         "clamped above one",
			line:         "[download] 104.3% of 1MiB ETA 00:00",
			wantFraction: true,
			fraction:     1.0,
		},
		{
			name:         "complete",
			line:         "[download] 100% of 10.00MiB in 00:00:03 at 2.9MiB/s ETA Unknown",
			wantFraction: true,
			fraction:     1.0,
		},
		{
			name: "plain status line",
			line: "Downloading webpage",
		},
		{
			name: "percent without eta",
			line: "[download] 100% of 10.00MiB in 00:03",
		},
		{
			name: "eta without percent",
			line: "ETA unknown",
		},
		{
			name: "eta inside another word",
			line: `[Metadata] Adding metadata to "Track 50%.m4a"`,
		},
		{
			name: "eta inside a url",
			line: "[generic] Extracting URL: https://example.com/beta%20clip",
		},
		{
			name: "percent token is the only eta mention",
			line: "[download] 5%ETA",
		},
		{
			name:         "eta with colon",
			line:         "[download] 30% ETA: 00:12",
			wantFraction: true,
			fraction:     0.3,
		},
		{
			name: "unparseable percentage",
			line: "[download] ---% ETA --:--",
		},
		{
			name: "empty line",
			line: "",
		},
	}

	tracker := NewProgressTracker()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := tracker.OnLine(tt.line)
			assert.Equal(t, tt.line, event.RawLine)
			assert.Equal(t, tt.wantFraction, event.HasFraction())
			assert.Equal(t, tt.wantFraction, event.ReplaceLast)
			if tt.wantFraction {
				require.NotNil(t, event.Fraction)
				assert.InDelta(t, tt.fraction, *event.Fraction, 1e-9)
			}
		})
	}
}

func TestProgressTracker_FractionInRange(t *testing.T) {
	tracker := NewProgressTracker()
	lines := []string{
		"0% ETA 10:00",
		"0.0% ETA 10:00",
		"99.99% ETA 00:01",
		"999999% ETA x",
		"1.2.3% ETA x",
	}
	for _, line := range lines {
		event := tracker.OnLine(line)
		require.True(t, event.HasFraction(), line)
		assert.GreaterOrEqual(t, *event.Fraction, 0.0)
		assert.LessOrEqual(t, *event.Fraction, 1.0)
	}
}
