// Command uvc-gadget runs the user-space control and streaming loop for a
// Linux UVC gadget function, answering host probe/commit negotiation and
// feeding the kernel driver a test-pattern video stream.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"uvcgadget.dev/uvcgadget"
)

const defaultGadgetRoot = "/sys/kernel/config/usb_gadget/g1/functions"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-h] <uvc-device>\n", filepath.Base(os.Args[0]))
	fmt.Fprintf(os.Stderr, "  <uvc-device> is a function name (uvc.0) or a fully qualified\n")
	fmt.Fprintf(os.Stderr, "  gadget path (g1/functions/uvc.0)\n")
}

func main() {
	fs := flag.NewFlagSet(filepath.Base(os.Args[0]), flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = usage
	verbose := fs.Bool("verbose", false, "enable verbose logging")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		usage()
		os.Exit(1)
	}

	logLevel := log.LstdFlags
	if *verbose {
		logLevel |= log.Lshortfile
	}
	logger := log.New(os.Stderr, "uvc-gadget: ", logLevel)

	gadgetRoot, function := resolveFunction(fs.Arg(0))

	gadget, err := uvcgadget.Start(gadgetRoot, function, logger)
	if err != nil {
		logger.Printf("startup failed: %v", err)
		os.Exit(1)
	}

	if err := gadget.Run(); err != nil {
		logger.Printf("run failed: %v", err)
		os.Exit(1)
	}
}

// resolveFunction splits a fully qualified gadget path like
// "g1/functions/uvc.0" into its root ("g1/functions", rebased under the
// standard configfs mount) and function name ("uvc.0"). A bare function
// name is resolved against defaultGadgetRoot.
func resolveFunction(arg string) (root, function string) {
	const marker = "functions/"
	if idx := strings.Index(arg, marker); idx >= 0 {
		function = arg[idx+len(marker):]
		gadgetDir := arg[:idx+len(marker)-1]
		if !filepath.IsAbs(gadgetDir) {
			gadgetDir = filepath.Join("/sys/kernel/config/usb_gadget", gadgetDir)
		}
		return gadgetDir, function
	}
	return defaultGadgetRoot, arg
}
