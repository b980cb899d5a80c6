package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/romshark/dgsched"
	"github.com/romshark/dgsched/internal/config"
	"github.com/romshark/dgsched/udp"

	"github.com/urfave/cli"
)

func run(args []string) error {
	app := cli.NewApp()
	app.Name = "dgsched"
	app.HelpName = "dgsched"
	app.Usage = "send UDP datagrams now, later or periodically"
	app.UsageText = "dgsched [global options] <command> [arguments...]"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "env-file",
			Usage: "load configuration variables from `FILE`",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:      "send",
			Usage:     "sends a datagram immediately",
			ArgsUsage: "<host:port> <payload>",
			Action:    send,
		},
		{
			Name:      "after",
			Usage:     "sends a datagram once after a delay",
			ArgsUsage: "<host:port> <payload>",
			Action:    after,
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "delay, d",
					Value: 5 * time.Second,
					Usage: "delay before sending",
				},
			},
		},
		{
			Name:      "every",
			Usage:     "sends a datagram periodically",
			ArgsUsage: "<host:port> <payload>",
			Action:    every,
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "interval, i",
					Value: 2 * time.Second,
					Usage: "interval between datagrams",
				},
				cli.DurationFlag{
					Name:  "for",
					Usage: "cancel after this duration, runs until interrupted if zero",
				},
			},
		},
		{
			Name:   "demo",
			Usage:  "sends Hi to port, Delay to port+1 after a delay and Ping to port+2 periodically",
			Action: demo,
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "host",
					Value: "127.0.0.1",
					Usage: "destination host",
				},
				cli.UintFlag{
					Name:  "port",
					Value: 5000,
					Usage: "first of three consecutive destination ports",
				},
				cli.DurationFlag{
					Name:  "delay",
					Value: 5 * time.Second,
					Usage: "delay of the one-shot datagram",
				},
				cli.DurationFlag{
					Name:  "interval",
					Value: 2 * time.Second,
					Usage: "interval of the periodic datagram",
				},
				cli.DurationFlag{
					Name:  "for",
					Value: 10 * time.Second,
					Usage: "cancel the periodic datagram after this duration",
				},
			},
		},
	}
	return app.Run(args)
}

// env is the runtime environment shared by all commands.
type env struct {
	log    *slog.Logger
	sender *udp.Sender
	sched  *dgsched.Scheduler
}

func setup(c *cli.Context) (*env, error) {
	var files []string
	if f := c.GlobalString("env-file"); f != "" {
		files = append(files, f)
	}
	conf, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	log := conf.Logger(os.Stderr)

	sender, err := udp.Listen(conf.Bind,
		udp.WithTTL(conf.TTL),
		udp.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return &env{
		log:    log,
		sender: sender,
		sched:  dgsched.New(sender, dgsched.WithLogger(log)),
	}, nil
}

func (e *env) Close() {
	e.sched.Shutdown()
	if err := e.sender.Close(); err != nil {
		e.log.Error("closing sender", slog.Any("error", err))
	}
}

// destinationArgs parses the <host:port> <payload> arguments.
func destinationArgs(c *cli.Context) (netip.AddrPort, []byte, error) {
	if c.NArg() != 2 {
		return netip.AddrPort{}, nil, fmt.Errorf(
			"expected 2 arguments <host:port> <payload>, got %d", c.NArg(),
		)
	}
	dst, err := udp.ResolveAddrPort(context.Background(), c.Args().Get(0))
	if err != nil {
		return netip.AddrPort{}, nil, err
	}
	return dst, []byte(c.Args().Get(1)), nil
}

// interruptible returns a context canceled on SIGINT and SIGTERM
// or after d if d > 0.
func interruptible(d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	if d < 1 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() { cancel(); stop() }
}

func send(c *cli.Context) error {
	dst, payload, err := destinationArgs(c)
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	return e.sched.SendNow(dst, payload)
}

func after(c *cli.Context) error {
	dst, payload, err := destinationArgs(c)
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ref, err := e.sched.SendAfter(c.Duration("delay"), dst, payload)
	if err != nil {
		return err
	}

	ctx, cancel := interruptible(0)
	defer cancel()

	// Wait until the worker has taken the task off the queue
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for e.sched.Has(ref) {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
	}
	return nil
}

func every(c *cli.Context) error {
	dst, payload, err := destinationArgs(c)
	if err != nil {
		return err
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	id, err := e.sched.SendPeriodic(c.Duration("interval"), dst, payload)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, id)

	ctx, cancel := interruptible(c.Duration("for"))
	defer cancel()
	<-ctx.Done()

	e.sched.CancelPeriodic(id)
	return nil
}

func demo(c *cli.Context) error {
	port := c.Uint("port")
	if port < 1 || port > 65533 {
		return fmt.Errorf("port %d out of range [1, 65533]", port)
	}
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx := context.Background()
	host := c.String("host")

	dst, err := udp.Resolve(ctx, host, uint16(port))
	if err != nil {
		return err
	}
	if err := e.sched.SendNow(dst, []byte("Hi")); err != nil {
		return err
	}

	if dst, err = udp.Resolve(ctx, host, uint16(port+1)); err != nil {
		return err
	}
	if _, err := e.sched.SendAfter(c.Duration("delay"), dst, []byte("Delay")); err != nil {
		return err
	}

	if dst, err = udp.Resolve(ctx, host, uint16(port+2)); err != nil {
		return err
	}
	id, err := e.sched.SendPeriodic(c.Duration("interval"), dst, []byte("Ping"))
	if err != nil {
		return err
	}
	e.log.Info("periodic task scheduled", slog.Uint64("task_id", uint64(id)))

	wait, cancel := interruptible(c.Duration("for"))
	defer cancel()
	<-wait.Done()

	e.sched.CancelPeriodic(id)
	return nil
}
