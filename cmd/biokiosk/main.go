package main

import (
	"runtime"
)

func init() {
	// OpenCV's highgui needs the main OS thread on macOS
	runtime.LockOSThread()
}

func main() {
	Execute()
}
