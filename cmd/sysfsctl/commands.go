package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/BertoldVdb/go-sysfs/board"
	"github.com/BertoldVdb/go-sysfs/hwerr"
	"github.com/BertoldVdb/go-sysfs/sysfs"
	"github.com/BertoldVdb/go-sysfs/sysfs/gpio"
	"github.com/sirupsen/logrus"
)

type env struct {
	host  *sysfs.Host
	board *board.Board
	log   *logrus.Entry
	out   io.Writer
}

type command struct {
	args  int
	usage string
	run   func(e *env, args []string) error
}

var commands = map[string]command{
	"gpio-read":     {1, "<pin>  print the level of an input", (*env).gpioRead},
	"gpio-write":    {2, "<pin> <0|1>  drive an output", (*env).gpioWrite},
	"gpio-wait":     {3, "<pin> <rising|falling|both> <timeout>  wait for an edge", (*env).gpioWait},
	"pwm-set":       {4, "<output> <period_ns> <duty_ns> <duration>  run an output for a while", (*env).pwmSet},
	"adc-read":      {1, "<input>  print the raw sample and the voltage", (*env).adcRead},
	"release-stale": {0, "unexport what a crashed run left behind (needs -ledger)", (*env).releaseStale},
}

func commandNames() []string {
	var names []string
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *env) run(args []string) error {
	cmd, found := commands[args[0]]
	if !found {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "run", "", "unknown command %q", args[0])
	}
	if len(args)-1 != cmd.args {
		return hwerr.Newf(hwerr.ErrorInvalidConfiguration, "run", "", "%s takes %d arguments: %s", args[0], cmd.args, cmd.usage)
	}
	return cmd.run(e, args[1:])
}

func parseLevel(s string) (bool, error) {
	switch s {
	case "0", "low":
		return false, nil
	case "1", "high":
		return true, nil
	}
	return false, hwerr.Newf(hwerr.ErrorInvalidConfiguration, "parse", "", "%q is not a level", s)
}

func parseUint(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, hwerr.New(hwerr.ErrorInvalidConfiguration, "parse", "", err)
	}
	return v, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, hwerr.New(hwerr.ErrorInvalidConfiguration, "parse", "", err)
	}
	return d, nil
}

func (e *env) gpioRead(args []string) error {
	p, err := e.board.OpenPin(e.host, args[0], gpio.Options{Direction: gpio.In})
	if err != nil {
		return err
	}
	defer p.Close()

	level, err := p.Read()
	if err != nil {
		return err
	}

	if level {
		fmt.Fprintln(e.out, "1")
	} else {
		fmt.Fprintln(e.out, "0")
	}
	return nil
}

func (e *env) gpioWrite(args []string) error {
	level, err := parseLevel(args[1])
	if err != nil {
		return err
	}

	p, err := e.board.OpenPin(e.host, args[0], gpio.Options{Direction: gpio.Out, Initial: level})
	if err != nil {
		return err
	}
	return p.Close()
}

func (e *env) gpioWait(args []string) error {
	timeout, err := parseDuration(args[2])
	if err != nil {
		return err
	}

	p, err := e.board.OpenPin(e.host, args[0], gpio.Options{Direction: gpio.In})
	if err != nil {
		return err
	}
	defer p.Close()

	start := time.Now()
	if err := p.WaitForEdge(gpio.Edge(args[1]), timeout); err != nil {
		return err
	}

	fmt.Fprintf(e.out, "%s edge after %v\n", args[1], time.Since(start).Round(time.Millisecond))
	return nil
}

func (e *env) pwmSet(args []string) error {
	period, err := parseUint(args[1])
	if err != nil {
		return err
	}
	duty, err := parseUint(args[2])
	if err != nil {
		return err
	}
	duration, err := parseDuration(args[3])
	if err != nil {
		return err
	}

	c, err := e.board.OpenPWM(e.host, args[0])
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Configure(period, duty); err != nil {
		return err
	}
	if err := c.Enable(); err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"period": period,
		"duty":   duty,
	}).Info("Output running")
	time.Sleep(duration)
	return nil
}

func (e *env) adcRead(args []string) error {
	c, err := e.board.OpenADC(e.host, args[0])
	if err != nil {
		return err
	}

	raw, err := c.ReadRaw()
	if err != nil {
		return err
	}

	if e.board.ADCMaxRaw == 0 {
		fmt.Fprintf(e.out, "%d\n", raw)
		return nil
	}

	voltage, err := e.board.ReadVoltage(c)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.out, "%d %.4fV\n", raw, voltage)
	return nil
}

func (e *env) releaseStale(args []string) error {
	n, err := e.host.ReleaseStale()
	fmt.Fprintf(e.out, "released %d stale exports\n", n)
	return err
}
