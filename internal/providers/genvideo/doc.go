// Package genvideo is a client for the text-to-video generation API plus the
// job-adapter glue that drives it.
package genvideo
