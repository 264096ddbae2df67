// Package call defines the request envelope that flows through the dispatch pipeline.
package call

import (
	"fmt"
	"strings"
)

// PlatformTag identifies the host rendering engine that issued a call.
type PlatformTag int

const (
	PlatformOther PlatformTag = iota
	PlatformLynx
	PlatformWebView
)

func (p PlatformTag) String() string {
	switch p {
	case PlatformLynx:
		return "lynx"
	case PlatformWebView:
		return "webview"
	}
	return "other"
}

// ParsePlatform maps a platform name onto a tag. Unknown names are Other.
func ParsePlatform(s string) PlatformTag {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lynx":
		return PlatformLynx
	case "webview", "web":
		return PlatformWebView
	}
	return PlatformOther
}

// ThreadPreference is the execution context a call asks to run on.
type ThreadPreference int

const (
	ThreadUnspecified ThreadPreference = iota
	ThreadCurrent
	ThreadMain
	ThreadBackground
)

func (t ThreadPreference) String() string {
	switch t {
	case ThreadCurrent:
		return "current"
	case ThreadMain:
		return "main"
	case ThreadBackground:
		return "background"
	}
	return "unspecified"
}

// ParseThread accepts "current", "main", "background" or empty.
func ParseThread(s string) (ThreadPreference, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ThreadUnspecified, nil
	case "current":
		return ThreadCurrent, nil
	case "main", "ui":
		return ThreadMain, nil
	case "background", "bg":
		return ThreadBackground, nil
	}
	return ThreadUnspecified, fmt.Errorf("call:types - unknown thread preference %q", s)
}

// CancelPolicy says what an owning container does with pending callbacks when it is torn down.
type CancelPolicy int

const (
	// CancelNone leaves pending callbacks untouched.
	CancelNone CancelPolicy = iota
	// CancelAllCallbacks suppresses every pending callback.
	CancelAllCallbacks
	// CancelOnlySuccessCallbacks suppresses pending callbacks whose result is a success.
	CancelOnlySuccessCallbacks
)

func (c CancelPolicy) String() string {
	switch c {
	case CancelAllCallbacks:
		return "all"
	case CancelOnlySuccessCallbacks:
		return "success"
	}
	return "none"
}

// ParseCancelPolicy accepts "none", "all" or "success".
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CancelNone, nil
	case "all", "all_callbacks":
		return CancelAllCallbacks, nil
	case "success", "only_success_callbacks":
		return CancelOnlySuccessCallbacks, nil
	}
	return CancelNone, fmt.Errorf("call:types - unknown cancel policy %q", s)
}

// Suppresses reports whether a callback with the given outcome is dropped after teardown.
func (c CancelPolicy) Suppresses(success bool) bool {
	switch c {
	case CancelAllCallbacks:
		return true
	case CancelOnlySuccessCallbacks:
		return success
	}
	return false
}
