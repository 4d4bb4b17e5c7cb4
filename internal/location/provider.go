package location

import "context"

// PrimaryProvider is the preferred location service. A nil fix with a nil
// error means the provider simply had nothing to offer.
type PrimaryProvider interface {
	RequestFix(ctx context.Context, priority Priority) (*GeoFix, error)
	LastKnownFix(ctx context.Context) (*GeoFix, error)
}

// Registration is a pending single-update request. Cancel releases it
// synchronously and is safe to call more than once.
type Registration interface {
	Cancel()
}

// SecondaryProvider is the legacy multi-source location service.
type SecondaryProvider interface {
	Sources() []SourceID
	LastKnownFix(source SourceID) (*GeoFix, error)
	// BestSource picks an enabled source matching c; false when none is enabled.
	BestSource(c Criteria) (SourceID, bool)
	// RequestSingleUpdate delivers at most one fix to onFix until cancelled.
	RequestSingleUpdate(source SourceID, onFix func(GeoFix)) (Registration, error)
}
