// Package main provides the entry point for the PII Shield CLI.
//
// PII Shield serves a small web page that uploads identity document images
// to an OCR/PII backend, shows the detected PII and offers the masked image
// for download. The same backend can be driven from the command line.
//
// Usage:
//
//	pii-shield serve
//	pii-shield analyze <image>...
//	pii-shield mask <image> -o masked.png
//
// See --help for all available options.
package main

func main() {
	Execute()
}
