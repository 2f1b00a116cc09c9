package forecast

import (
	"github.com/lox/rizz/internal/metrics"
	"github.com/lox/rizz/internal/models"
)

const (
	FlagTempOutOfRange     = "temp_out_of_range"
	FlagTempRangeInverted  = "temp_range_inverted"
	FlagHumidityInvalid    = "humidity_invalid"
	FlagWindDirInvalid     = "wind_dir_invalid"
	FlagWindSpeedUnlikely  = "wind_speed_unlikely"
	FlagPressureOutOfRange = "pressure_out_of_range"
	FlagRainNegative       = "rain_negative"
)

// ValidateSample returns the plausibility flags of a metric sample. Zero
// pressure means the field was absent.
func ValidateSample(s models.Sample) []string {
	var flags []string
	t := s.Temps

	if t.Temp < -70 || t.Temp > 60 {
		flags = append(flags, FlagTempOutOfRange)
	}
	if t.Min > t.Max {
		flags = append(flags, FlagTempRangeInverted)
	}
	if t.Humidity < 0 || t.Humidity > 100 {
		flags = append(flags, FlagHumidityInvalid)
	}
	if s.Wind.Deg < 0 || s.Wind.Deg > 360 {
		flags = append(flags, FlagWindDirInvalid)
	}
	if s.Wind.Speed < 0 || s.Wind.Speed > 100 {
		flags = append(flags, FlagWindSpeedUnlikely)
	}
	if t.Pressure != 0 && (t.Pressure < 870 || t.Pressure > 1090) {
		flags = append(flags, FlagPressureOutOfRange)
	}
	if s.Rain != nil && s.Rain.ThreeHours < 0 {
		flags = append(flags, FlagRainNegative)
	}

	return flags
}

// flagSamples counts the samples of resp carrying at least one flag.
func flagSamples(resp *models.ForecastResponse) int {
	if resp == nil {
		return 0
	}
	n := 0
	for _, s := range resp.List {
		flags := ValidateSample(s)
		for _, f := range flags {
			metrics.SamplesFlagged.WithLabelValues(f).Inc()
		}
		if len(flags) > 0 {
			n++
		}
	}
	return n
}
