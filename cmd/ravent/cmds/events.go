package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/ravent/pkg/conversation"
	"github.com/go-go-golems/ravent/pkg/events"
)

func newEventsCommand(r *root) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Follow conversations mirrored to Redis",
	}
	cmd.AddCommand(newEventsTailCommand(r))
	return cmd
}

func newEventsTailCommand(r *root) *cobra.Command {
	var group, consumer string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print conversation updates as they happen",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := r.app
			rs := a.Settings.Redis
			if !rs.Enabled {
				return errors.New("events tail needs redis; set redis.enabled in the config or RAVENT_REDIS_ENABLED=true")
			}
			bus, err := events.NewBus(events.Settings{
				Redis:    true,
				Addr:     rs.Addr,
				Topic:    rs.Stream,
				Group:    group,
				Consumer: consumer,
			})
			if err != nil {
				return err
			}
			defer func() {
				_ = bus.Close()
			}()

			ctx := cmd.Context()
			if err := bus.EnsureGroupAtTail(ctx, group); err != nil {
				return err
			}
			updates, err := bus.Subscribe(ctx)
			if err != nil {
				return err
			}
			a.Printf("Following %s on %s (ctrl+c to stop).\n", bus.Topic(), rs.Addr)
			for u := range updates {
				a.Printf("%s\n", formatUpdate(u))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Redis consumer group (empty reads as a fan-out follower)")
	cmd.Flags().StringVar(&consumer, "consumer", "", "Consumer name inside the group")
	return cmd
}

func formatUpdate(u events.Update) string {
	last, ok := u.Latest()
	prefix := fmt.Sprintf("%s [%s %s]", u.At.Local().Format("15:04:05"), shortID(u.ConversationID), u.Mode)
	if !ok {
		return prefix + " (empty)"
	}
	text := last.Text
	if last.Status == conversation.StatusPending {
		text = "..."
	}
	return fmt.Sprintf("%s %s/%s: %s", prefix, last.Sender, last.Status, text)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
