package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlias(t *testing.T) {
	assert.NoError(t, Alias("clinic-north"))
	assert.Error(t, Alias("Clinic"))
	assert.Error(t, Alias("a"))
	assert.Error(t, Alias("-x"))
}

func TestUsername(t *testing.T) {
	assert.NoError(t, Username(""))
	assert.NoError(t, Username("dr.pop@clinic"))
	assert.Error(t, Username("ab"))
	assert.Error(t, Username("has space"))
}

func TestPrice(t *testing.T) {
	for in, want := range map[string]string{"0": "0.00", "12.5": "12.50", "99.99": "99.99"} {
		got, err := Price(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	for _, in := range []string{"-1", "1.234", "abc", ""} {
		_, err := Price(in)
		assert.Error(t, err, in)
	}
}

func TestTimezone(t *testing.T) {
	tz, err := Timezone("")
	require.NoError(t, err)
	assert.Equal(t, "UTC", tz)

	tz, err = Timezone("Europe/Bucharest")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Bucharest", tz)

	_, err = Timezone("Mars/Olympus")
	assert.Error(t, err)
}

func TestDurationCurrency(t *testing.T) {
	assert.NoError(t, Duration(30))
	assert.Error(t, Duration(0))
	assert.Error(t, Duration(1441))

	c, err := Currency("", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "EUR", c)
	c, err = Currency("ron", "EUR")
	require.NoError(t, err)
	assert.Equal(t, "RON", c)
	_, err = Currency("euro", "")
	assert.Error(t, err)
}

func TestDateRange(t *testing.T) {
	assert.NoError(t, DateRange("2024-05-01", "2024-05-01"))
	assert.Error(t, DateRange("2024-05-02", "2024-05-01"))
	assert.Error(t, DateRange("01/05/2024", "2024-05-01"))
}

func TestPasswordHash(t *testing.T) {
	assert.Error(t, Password("short"))
	h, err := HashPassword("secret-pass")
	require.NoError(t, err)
	assert.True(t, CheckPassword(h, "secret-pass"))
	assert.False(t, CheckPassword(h, "wrong-pass"))
}
