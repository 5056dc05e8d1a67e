package analytics

import "github.com/radiusdt/banner-analytics/internal/models"

// CheckConsent rejects a tracking request unless both consent flags are
// set. This runs before anything touches a store: a rejected request leaves
// no event row, no counter mutation and no session update behind. Hard
// invariant, not a best-effort filter.
func CheckConsent(req *models.TrackRequest) error {
	if !req.ConsentGiven || !req.DataProcessingConsent {
		return ErrConsentRequired
	}
	return nil
}
