package browsercontext

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shehryarbajwa/browsercontext/pkg/models"
)

func TestValidateGeolocation(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		geo       models.Geolocation
		wantField string
		wantRule  string
	}{
		"origin":           {geo: models.Geolocation{}},
		"upper_bounds":     {geo: models.Geolocation{Longitude: 180, Latitude: 90, Accuracy: 1000}},
		"lower_bounds":     {geo: models.Geolocation{Longitude: -180, Latitude: -90, Accuracy: 0}},
		"typical":          {geo: models.Geolocation{Longitude: 13.4, Latitude: 52.5, Accuracy: 10}},
		"longitude_high":   {geo: models.Geolocation{Longitude: 180.0001}, wantField: "longitude", wantRule: "-180 <= LONGITUDE <= 180"},
		"longitude_low":    {geo: models.Geolocation{Longitude: -180.0001}, wantField: "longitude", wantRule: "-180 <= LONGITUDE <= 180"},
		"longitude_200":    {geo: models.Geolocation{Longitude: 200}, wantField: "longitude", wantRule: "-180 <= LONGITUDE <= 180"},
		"latitude_high":    {geo: models.Geolocation{Latitude: 90.0001}, wantField: "latitude", wantRule: "-90 <= LATITUDE <= 90"},
		"latitude_low":     {geo: models.Geolocation{Latitude: -90.0001}, wantField: "latitude", wantRule: "-90 <= LATITUDE <= 90"},
		"accuracy_neg":     {geo: models.Geolocation{Accuracy: -0.0001}, wantField: "accuracy", wantRule: "0 <= ACCURACY"},
		"longitude_nan":    {geo: models.Geolocation{Longitude: math.NaN()}, wantField: "longitude", wantRule: "-180 <= LONGITUDE <= 180"},
		"longitude_first":  {geo: models.Geolocation{Longitude: 500, Latitude: 500, Accuracy: -1}, wantField: "longitude", wantRule: "LONGITUDE"},
		"latitude_then":    {geo: models.Geolocation{Latitude: 500, Accuracy: -1}, wantField: "latitude", wantRule: "LATITUDE"},
		"accuracy_inf_neg": {geo: models.Geolocation{Accuracy: math.Inf(-1)}, wantField: "accuracy", wantRule: "ACCURACY"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := ValidateGeolocation(tt.geo)
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %T", err)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Contains(t, err.Error(), tt.wantField)
			assert.Contains(t, err.Error(), tt.wantRule)
		})
	}
}

func TestValidateGeolocationMessage(t *testing.T) {
	t.Parallel()

	err := ValidateGeolocation(models.Geolocation{Longitude: 200})
	require.Error(t, err)
	assert.Equal(t, "invalid longitude '200': precondition -180 <= LONGITUDE <= 180 failed", err.Error())
}
