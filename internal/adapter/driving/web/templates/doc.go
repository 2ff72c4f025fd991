// Package templates holds the templ components for the dashboard pages.
// The *_templ.go files are generated with `templ generate`; edit the .templ
// sources instead.
package templates
