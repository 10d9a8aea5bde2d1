// Package httputil holds the JSON envelope helpers shared by the API
// handlers. Every response carries a success flag; failures add an error
// message, an optional machine-readable code and optional details.
package httputil
