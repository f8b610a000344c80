package notify

import (
	"context"
	"log"

	"perptrader/internal/events"
	"perptrader/internal/governor"
)

// SettingsSource exposes the live channel preferences.
type SettingsSource interface {
	Settings() governor.Settings
}

// Notifier consumes bus notifications and fans them out to the configured
// sinks, honoring the user's channel settings. The process log always
// receives allowed notifications; telegram only when configured and
// enabled.
type Notifier struct {
	bus      *events.Bus
	source   SettingsSource
	telegram *TelegramSender // nil when unconfigured
}

func New(bus *events.Bus, source SettingsSource, telegram *TelegramSender) *Notifier {
	return &Notifier{bus: bus, source: source, telegram: telegram}
}

// Run blocks until the context ends.
func (n *Notifier) Run(ctx context.Context) {
	ch, unsub := n.bus.Subscribe(events.EventNotification, 64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			note, valid := raw.(events.Notification)
			if !valid {
				continue
			}
			n.dispatch(ctx, note)
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, note events.Notification) {
	settings := n.source.Settings()
	if !allowed(note, settings.Channels) {
		return
	}

	log.Printf("🔔 [%s] %s: %s", note.Type, note.Title, note.Message)

	if n.telegram != nil && settings.Channels.Telegram {
		if err := n.telegram.Send(ctx, note.Title+"\n"+note.Message); err != nil {
			log.Printf("[NOTIFY] telegram send failed: %v", err)
		}
	}
}

// allowed applies the channel toggles per notification category. Unknown
// categories always pass.
func allowed(note events.Notification, ch governor.Channels) bool {
	switch note.Category {
	case "signal":
		return ch.Signals
	case "trade":
		return ch.Trades
	}
	return true
}
