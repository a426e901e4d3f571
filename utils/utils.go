// Package utils provides logging, error and buffer facilities used by every
// other package in tunnel_simple.
package utils
