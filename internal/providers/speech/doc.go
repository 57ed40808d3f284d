// Package speech is a client for the long-running speech-to-text API.
package speech
