package web

import "embed"

// StaticFS holds the embedded stylesheet and the countdown/copy script.
//
//go:embed static/*
var StaticFS embed.FS
