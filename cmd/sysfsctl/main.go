// Command sysfsctl pokes at GPIO, PWM and ADC resources from the shell.
//
// Usage:
//
//	sysfsctl [flags] <command> [arguments]
//
// Pins and outputs are header names of the board (P9_12, EHRPWM0A, AIN0) or
// plain kernel numbers. Run without a command to list the commands.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/BertoldVdb/go-sysfs/board"
	"github.com/BertoldVdb/go-sysfs/logrusconfig"
	"github.com/BertoldVdb/go-sysfs/sysfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

func main() {
	boardFile := flag.String("board", "", "YAML board description (default: BeagleBone Black)")
	root := flag.String("root", "", "Directory that stands in for / when resolving sysfs paths")
	ledger := flag.String("ledger", "", "File recording exports, so release-stale can clean up after a crash")
	logrusconfig.InitParam()
	flag.Usage = usage
	flag.Parse()

	log := logrusconfig.GetPrefixedLogger(logrus.InfoLevel, "sysfsctl")

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	var fs afero.Fs = afero.NewOsFs()
	if *root != "" {
		fs = afero.NewBasePathFs(fs, *root)
	}

	b := board.BeagleBoneBlack()
	if *boardFile != "" {
		var err error
		b, err = board.Load(afero.NewOsFs(), *boardFile)
		if err != nil {
			log.WithError(err).Fatal("Failed to load board")
		}
	}

	host, err := sysfs.NewHost(&sysfs.HostOptions{
		Fs:         fs,
		Logger:     log.WithField("prefix", "sysfs"),
		LedgerFile: *ledger,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to set up sysfs")
	}

	e := &env{
		host:  host,
		board: b,
		log:   log,
		out:   os.Stdout,
	}
	if err := e.run(flag.Args()); err != nil {
		log.WithError(err).Error("Command failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [arguments]\n\nCommands:\n", os.Args[0])
	for _, name := range commandNames() {
		fmt.Fprintf(flag.CommandLine.Output(), "  %-14s %s\n", name, commands[name].usage)
	}
	fmt.Fprintf(flag.CommandLine.Output(), "\nFlags:\n")
	flag.PrintDefaults()
}
