package web

import "embed"

// StaticFS holds the embedded stylesheet and the live-update script.
//
//go:embed static/*
var StaticFS embed.FS
