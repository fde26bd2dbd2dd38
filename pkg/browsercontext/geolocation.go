package browsercontext

import "github.com/shehryarbajwa/browsercontext/pkg/models"

// ValidateGeolocation checks that g lies within the valid coordinate bounds.
// NaN fails every bound.
func ValidateGeolocation(g models.Geolocation) error {
	if !(g.Longitude >= -180 && g.Longitude <= 180) {
		return &ValidationError{
			Field: "longitude",
			Value: g.Longitude,
			Rule:  "precondition -180 <= LONGITUDE <= 180 failed",
		}
	}
	if !(g.Latitude >= -90 && g.Latitude <= 90) {
		return &ValidationError{
			Field: "latitude",
			Value: g.Latitude,
			Rule:  "precondition -90 <= LATITUDE <= 90 failed",
		}
	}
	if !(g.Accuracy >= 0) {
		return &ValidationError{
			Field: "accuracy",
			Value: g.Accuracy,
			Rule:  "precondition 0 <= ACCURACY failed",
		}
	}
	return nil
}
