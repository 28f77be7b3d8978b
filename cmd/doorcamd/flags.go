package main

import "flag"

// cliFlags holds the parsed command line, matching spec.md §6 "CLI"
// exactly: --config, --debug, --verbose, --print-config,
// --validate-config, --enable-keyboard.
type cliFlags struct {
	configPath     string
	debug          bool
	verbose        bool
	printConfig    bool
	validateConfig bool
	enableKeyboard bool
}

func parseFlags(args []string) (cliFlags, error) {
	fs := flag.NewFlagSet("doorcamd", flag.ContinueOnError)

	var f cliFlags
	fs.StringVar(&f.configPath, "config", defaultConfigPath, "path to configuration file")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&f.verbose, "verbose", false, "enable verbose logging")
	fs.BoolVar(&f.printConfig, "print-config", false, "print the resolved configuration and exit")
	fs.BoolVar(&f.validateConfig, "validate-config", false, "validate the configuration and exit")
	fs.BoolVar(&f.enableKeyboard, "enable-keyboard", false, "enable out-of-core keyboard debug controls")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return f, nil
}
