package reading

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_Aliases(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		temp float64
		hum  float64
	}{
		{"indonesian keys", map[string]any{"suhu": 32.0, "lembap": 20.0, "light": 100.0}, 32.0, 20.0},
		{"english keys", map[string]any{"temperature": 25.5, "humidity": 40.0, "light": 100.0}, 25.5, 40.0},
		{"short keys", map[string]any{"temp": 18.0, "hum": 55.0}, 18.0, 55.0},
		{"numeric strings", map[string]any{"suhu": "24.5", "lembap": " 60 "}, 24.5, 60.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Decode(tt.data)
			require.NoError(t, err)
			require.NotNil(t, r.Temperature)
			require.NotNil(t, r.Humidity)
			assert.Equal(t, tt.temp, *r.Temperature)
			assert.Equal(t, tt.hum, *r.Humidity)
		})
	}
}

func TestDecode_FirstAliasWins(t *testing.T) {
	r, err := Decode(map[string]any{"suhu": 20.0, "temperature": 99.0})
	require.NoError(t, err)
	assert.Equal(t, 20.0, *r.Temperature)
}

func TestDecode_MissingIsNeverZero(t *testing.T) {
	r, err := Decode(map[string]any{
		"suhu":     "n/a",
		"lembap":   true,
		"light":    nil,
		"rawLight": map[string]any{"v": 1},
	})
	require.NoError(t, err)

	assert.Nil(t, r.Temperature)
	assert.Nil(t, r.Humidity)
	assert.Nil(t, r.Light)
	assert.Nil(t, r.RawLight)
	assert.ElementsMatch(t, []string{FieldTemperature, FieldHumidity, FieldLight, FieldRawLight}, r.Missing)
	assert.False(t, r.Complete())
}

func TestDecode_LightIsRounded(t *testing.T) {
	r, err := Decode(map[string]any{"light": 3499.6, "rawLight": 595.2})
	require.NoError(t, err)
	assert.Equal(t, int64(3500), *r.Light)
	assert.Equal(t, int64(595), *r.RawLight)
}

func TestDecode_DeviceLabel(t *testing.T) {
	r, err := Decode(map[string]any{"suhu": 25.0, "status": "Tidak Aman"})
	require.NoError(t, err)
	assert.Equal(t, "Tidak Aman", r.Label("N/A"))

	r, err = Decode(map[string]any{"suhu": 25.0, "label": ""})
	require.NoError(t, err)
	assert.Nil(t, r.DeviceLabel)
	assert.Equal(t, "N/A", r.Label("N/A"))
}

func TestDecode_NoKnownFields(t *testing.T) {
	_, err := Decode(map[string]any{"foo": 1, "bar": "x"})
	assert.True(t, errors.Is(err, ErrNoKnownFields))
}

func TestDecodeJSON(t *testing.T) {
	r, err := DecodeJSON([]byte(`{"suhu": 25.0, "lembap": 20.0, "light": 3500, "rawLight": 595}`))
	require.NoError(t, err)
	assert.True(t, r.Complete())
	assert.Empty(t, r.Missing)

	_, err = DecodeJSON([]byte(`LED_RED`))
	assert.Error(t, err)
}

func TestBrightness(t *testing.T) {
	assert.Equal(t, int64(3500), Brightness(3500, BrighterHigher, DefaultScaleMax))
	assert.Equal(t, int64(595), Brightness(3500, DarkerHigher, DefaultScaleMax))
	assert.Equal(t, int64(95), Brightness(4000, DarkerHigher, 0))
}

func TestParsePolarity(t *testing.T) {
	p, err := ParsePolarity("")
	require.NoError(t, err)
	assert.Equal(t, BrighterHigher, p)

	p, err = ParsePolarity("Darker-Higher")
	require.NoError(t, err)
	assert.Equal(t, DarkerHigher, p)

	_, err = ParsePolarity("sideways")
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "32", FormatFloat(Float(32.0)))
	assert.Equal(t, "24.5", FormatFloat(Float(24.5)))
	assert.Equal(t, "", FormatFloat(nil))
	assert.Equal(t, "4095", FormatInt(Int(4095)))
	assert.Equal(t, "", FormatInt(nil))
}
