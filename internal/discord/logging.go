package discord

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

var bridgeOnce sync.Once

// bridgeLogs routes discordgo's internal logging through zerolog.
func bridgeLogs(logger zerolog.Logger) {
	bridgeOnce.Do(func() {
		l := logger.With().Str("source", "discordgo").Logger()
		discordgo.Logger = func(msgL, caller int, format string, a ...interface{}) {
			var ev *zerolog.Event
			switch msgL {
			case discordgo.LogError:
				ev = l.Error()
			case discordgo.LogWarning:
				ev = l.Warn()
			case discordgo.LogInformational:
				ev = l.Info()
			default:
				ev = l.Debug()
			}
			ev.Msg(fmt.Sprintf(format, a...))
		}
	})
}
