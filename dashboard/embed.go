// Package dashboard provides the embedded control panel page.
//
// The page is compiled into the binary with the embed directive, so the
// panel ships as a single executable. It is served by the server package at
// the root path ("/").
package dashboard

import "embed"

// Assets is an embedded filesystem containing the control panel UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Control panel page with inline CSS and JavaScript
//
// The page contains a {{.Title}} placeholder that the server replaces with
// the HTML-escaped panel title.
//
//go:embed assets/*
var Assets embed.FS
