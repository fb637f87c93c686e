// Package httputil holds the JSON response and request helpers shared by
// the API handlers.
package httputil
