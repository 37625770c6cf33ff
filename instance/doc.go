// Package instance owns server instances between external calls.
//
// Callers hold only an opaque Handle. Each handle maps to a single-owner
// slot holding the instance: an operation takes the instance out of the
// slot, works on it, and puts it back. Operations on one handle therefore
// never overlap, and different handles never contend. Run gives the
// instance back before it starts supervising, so Destroy can reach a
// running instance to stop it.
package instance
