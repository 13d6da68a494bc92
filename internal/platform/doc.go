// Package platform holds the adapters that talk to native plugins.
//
// Exactly one adapter is active per dispatcher. Each adapter owns one
// native channel handle, created on first use and never recreated; if
// creation fails, every later call fails with ErrUnavailable.
//
// The real JNI and Objective-C glue lives in the host application. It
// implements the small boundary interfaces defined here (JavaClass,
// Symbols) and forwards native callbacks through Receive.
package platform
