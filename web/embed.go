// Package web holds the page templates and static assets compiled into the binary.
package web

import "embed"

// TemplatesFS has layout.html plus one file per page, each defining "content".
//
//go:embed templates/*.html
var TemplatesFS embed.FS

//go:embed static/*
var StaticFS embed.FS
