// Package lease implements the renewable, mutually exclusive lease that names
// the single active collector.
//
// A lease is keyed by resource and held by an owner id. The holder renews it
// every tick; a lease that is not renewed expires and any instance may claim
// it. Leases are never explicitly released.
package lease
