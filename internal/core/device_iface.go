package core

import "context"

// DeviceGate acquires local capture devices one attempt at a time and
// classifies failures. It never retries internally; the caller decides
// if and when to try again.
type DeviceGate interface {
	AcquireMicrophone(ctx context.Context) (LocalTrack, error)
	AcquireCamera(ctx context.Context) (LocalTrack, error)
}
