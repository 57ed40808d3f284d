// Package vfx is a client for the prediction-style video effects API. Unlike
// the operation-name providers, state is polled by prediction id.
package vfx
