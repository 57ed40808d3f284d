// Package videointel is a client for the video intelligence annotation API.
// Annotate returns a long-running operation name that GetOperation polls
// until done.
package videointel
