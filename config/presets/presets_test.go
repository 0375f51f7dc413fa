package presets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresetsAreValid(t *testing.T) {
	require.Equal(t, []string{"neighbours", "p2p"}, Options())
	for _, name := range Options() {
		t.Run(name, func(t *testing.T) {
			conf, err := Get(name)
			require.NoError(t, err)
			require.Equal(t, name, conf.Preset)
			require.NoError(t, conf.Validate())
		})
	}
	_, err := Get("mainnet")
	require.ErrorContains(t, err, "not registered")
}
