package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/twitchtv/twitch-native-ipc/pkg/ipc"
	"github.com/twitchtv/twitch-native-ipc/pkg/log"
)

// nativeipc is a diagnostic tool for the IPC library: an echo server
// on one side, one-shot send/invoke clients on the other.

func run(ctx context.Context, args []string) error {
	app := &cli.App{
		Name:  "nativeipc",
		Usage: "Exercise a native IPC endpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "transport",
				Aliases: []string{"t"},
				Value:   "pipe",
				Usage:   "transport to use: pipe, tcp or ws",
			},
			&cli.StringFlag{
				Name:    "endpoint",
				Aliases: []string{"e"},
				Value:   "nativeipc-demo",
				Usage:   "pipe name, or addr:port for tcp/ws",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "warning",
				Usage: "log level: debug, info, warning or error",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			sendCmd(),
			invokeCmd(),
		},
	}
	return app.RunContext(ctx, args)
}

func newLogger(c *cli.Context) *log.ColorLogger {
	level := log.LevelWarn
	switch ipc.LogLevelFromString(c.String("log-level")) {
	case ipc.LogDebug:
		level = log.LevelDebug
	case ipc.LogInfo:
		level = log.LevelInfo
	case ipc.LogError:
		level = log.LevelError
	}
	return log.NewColorLogger(log.Config{Level: level, Prefix: "nativeipc"})
}

func wireServerLog(conn *ipc.ServerConnection, c *cli.Context, logger *log.ColorLogger) {
	level := ipc.LogLevelFromString(c.String("log-level"))
	conn.OnLog(func(handle ipc.Handle, lvl ipc.LogLevel, message, category string) {
		line := fmt.Sprintf("[%s] #%d %s", category, handle, message)
		switch lvl {
		case ipc.LogDebug:
			logger.Debug(line)
		case ipc.LogInfo:
			logger.Info(line)
		case ipc.LogWarning:
			logger.Warn(line)
		default:
			logger.Error(line)
		}
	}, level)
}

func wireClientLog(conn *ipc.ClientConnection, c *cli.Context, logger *log.ColorLogger) {
	level := ipc.LogLevelFromString(c.String("log-level"))
	conn.OnLog(func(lvl ipc.LogLevel, message, category string) {
		line := fmt.Sprintf("[%s] %s", category, message)
		switch lvl {
		case ipc.LogDebug:
			logger.Debug(line)
		case ipc.LogInfo:
			logger.Info(line)
		case ipc.LogWarning:
			logger.Warn(line)
		default:
			logger.Error(line)
		}
	}, level)
}

func newMultiServer(c *cli.Context) (*ipc.ServerConnection, error) {
	endpoint := c.String("endpoint")
	switch c.String("transport") {
	case "pipe":
		return ipc.NewMultiServerConnection(endpoint, c.Bool("multiuser")), nil
	case "tcp":
		return ipc.NewMultiServerConnectionTCP(endpoint), nil
	case "ws":
		return ipc.NewMultiServerConnectionWebSocket(endpoint), nil
	}
	return nil, fmt.Errorf("unknown transport %q", c.String("transport"))
}

func newClient(c *cli.Context) (*ipc.ClientConnection, error) {
	endpoint := c.String("endpoint")
	switch c.String("transport") {
	case "pipe":
		return ipc.NewClientConnection(endpoint), nil
	case "tcp":
		return ipc.NewClientConnectionTCP(endpoint), nil
	case "ws":
		return ipc.NewClientConnectionWebSocket(endpoint), nil
	}
	return nil, fmt.Errorf("unknown transport %q", c.String("transport"))
}

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run an echo server until interrupted",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "multiuser",
				Usage: "grant every local user access to the pipe endpoint",
			},
		},
		Action: func(c *cli.Context) error {
			logger := newLogger(c)
			server, err := newMultiServer(c)
			if err != nil {
				return err
			}
			defer server.Close()

			wireServerLog(server, c, logger)
			server.OnConnect(func(conn ipc.Handle) {
				logger.Info(fmt.Sprintf("peer #%d connected", conn))
			})
			server.OnDisconnect(func(conn ipc.Handle) {
				logger.Info(fmt.Sprintf("peer #%d disconnected", conn))
			})
			server.OnReceived(func(conn ipc.Handle, message ipc.Payload) {
				logger.Info(fmt.Sprintf("peer #%d sent %d bytes: %s", conn, len(message), message))
			})
			server.OnInvokedImmediate(func(conn ipc.Handle, message ipc.Payload) ipc.Payload {
				logger.Info(fmt.Sprintf("peer #%d invoked with %d bytes, echoing", conn, len(message)))
				return message
			})

			server.Connect()
			logger.Info("serving on " + c.String("endpoint"))
			<-c.Context.Done()
			return nil
		},
	}
}

func sendCmd() *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "Send one fire-and-forget message",
		ArgsUsage: "<message>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one message argument")
			}
			logger := newLogger(c)
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			wireClientLog(client, c, logger)
			connected := make(chan struct{})
			client.OnConnect(func() { close(connected) })

			client.Send(ipc.Payload(c.Args().First()))
			client.Connect()

			select {
			case <-connected:
				// The transport write queue drains after the
				// connect event; give it a beat before teardown.
				time.Sleep(100 * time.Millisecond)
				return nil
			case <-c.Context.Done():
				return c.Context.Err()
			case <-time.After(5 * time.Second):
				return fmt.Errorf("timed out connecting to %s", c.String("endpoint"))
			}
		},
	}
}

func invokeCmd() *cli.Command {
	return &cli.Command{
		Name:      "invoke",
		Usage:     "Invoke the server and print the response",
		ArgsUsage: "<message>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("expected exactly one message argument")
			}
			logger := newLogger(c)
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			wireClientLog(client, c, logger)

			type outcome struct {
				code   ipc.InvokeResultCode
				result ipc.Payload
			}
			done := make(chan outcome, 1)
			client.InvokeWithCallback(ipc.Payload(c.Args().First()), func(code ipc.InvokeResultCode, result ipc.Payload) {
				done <- outcome{code: code, result: result}
			})
			client.Connect()

			select {
			case o := <-done:
				if o.code != ipc.Good {
					return fmt.Errorf("invoke failed: disconnected before a response arrived")
				}
				fmt.Println(string(o.result))
				return nil
			case <-c.Context.Done():
				return c.Context.Err()
			case <-time.After(5 * time.Second):
				return fmt.Errorf("timed out invoking %s", c.String("endpoint"))
			}
		},
	}
}
