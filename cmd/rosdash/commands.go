package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TheAlpha16/rosweb-go"
)

var (
	tfInterval  time.Duration
	pubAnnounce bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <topic>",
	Short: "Print every message polled from a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bridge, logger, err := openBridge(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer bridge.Close()

		return follow(cmd, bridge, logger, args[0], func(ctx context.Context, topic *rosweb.Topic) error {
			return topic.SetCallback(ctx, printMessage(cmd.OutOrStdout()))
		})
	},
}

var tfCmd = &cobra.Command{
	Use:   "tf <name>",
	Short: "Poll a transform at a fixed interval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bridge, logger, err := openBridge(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer bridge.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		tf := bridge.Tf(args[0])
		if err := tf.SetCallback(ctx, printMessage(cmd.OutOrStdout()), tfInterval); err != nil {
			return err
		}
		logger.Info("polling transform", zap.String("tf", args[0]), zap.Duration("interval", tf.Interval()))

		<-tf.Done()
		return nil
	},
}

var pubCmd = &cobra.Command{
	Use:   "pub <topic> <msg>",
	Short: "Publish a message on a topic",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bridge, logger, err := openBridge(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer bridge.Close()

		topic := bridge.Topic(args[0])
		if pubAnnounce {
			if err := topic.Announce(cmd.Context()); err != nil {
				return err
			}
		}
		if err := topic.Publish(cmd.Context(), args[1]); err != nil {
			return err
		}

		// Publish is fire-and-forget; give the request a moment before Close
		// cancels it.
		time.Sleep(500 * time.Millisecond)
		return nil
	},
}

var batteryCmd = &cobra.Command{
	Use:   "battery",
	Short: "Show the battery percentage as it changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bridge, logger, err := openBridge(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		defer bridge.Close()

		out := cmd.OutOrStdout()
		handler := rosweb.BatteryHandler(func(state rosweb.BatteryState) {
			fmt.Fprintf(out, "battery %.1f%%\n", state.Percent())
		}, func(err error) {
			logger.Debug("battery poll failed", zap.Error(err))
		})

		return follow(cmd, bridge, logger, rosweb.BatteryTopic, func(ctx context.Context, topic *rosweb.Topic) error {
			return topic.SetCallback(ctx, handler)
		})
	},
}

var startupCmd = &cobra.Command{
	Use:   "startup",
	Short: "Start the robot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return robotState(cmd, rosweb.Bridge.Startup)
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Stop the robot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return robotState(cmd, rosweb.Bridge.Shutdown)
	},
}

// follow subscribes to topic until interrupted, then unsubscribes and waits
// for the loop to finish.
func follow(cmd *cobra.Command, bridge rosweb.Bridge, logger *zap.Logger, name string, start func(context.Context, *rosweb.Topic) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	topic := bridge.Topic(name)
	if err := start(context.Background(), topic); err != nil {
		return err
	}
	logger.Info("watching topic", zap.String("topic", name), zap.String("subscription_id", topic.ID()))

	<-ctx.Done()
	if err := topic.Unsubscribe(context.Background()); err != nil {
		return err
	}

	select {
	case <-topic.Done():
	case <-time.After(5 * time.Second):
		logger.Warn("unsubscribe did not finish", zap.String("topic", name))
	}
	return nil
}

func robotState(cmd *cobra.Command, call func(rosweb.Bridge, context.Context) (rosweb.Result, error)) error {
	bridge, logger, err := openBridge(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()
	defer bridge.Close()

	res, err := call(bridge, cmd.Context())
	if err != nil {
		return fmt.Errorf("%s failed: %w", cmd.Name(), err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Payload)
	return nil
}

func printMessage(w io.Writer) rosweb.Handler {
	return func(_ context.Context, msg rosweb.Message) {
		fmt.Fprintf(w, "%s %s\n", msg.Name, msg.Raw())
	}
}

func init() {
	tfCmd.Flags().DurationVar(&tfInterval, "interval", 0, "poll interval (defaults to client.tf_interval)")
	pubCmd.Flags().BoolVar(&pubAnnounce, "announce", false, "announce the topic before publishing")
}
