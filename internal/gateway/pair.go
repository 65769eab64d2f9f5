package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
)

// ErrLinkButtonNotPressed is returned when pairing gave up waiting for the link button
var ErrLinkButtonNotPressed = errors.New("link button not pressed")

// Credentials identify a paired bridge
type Credentials struct {
	Address  string
	Username string
}

// Pair registers a new application user on a bridge. With an empty address the
// bridge is discovered first. The bridge only accepts the registration within
// a short window after its link button is pressed, so it is retried up to
// attempts times, pausing between tries.
func Pair(ctx context.Context, address, appName string, attempts int, pause time.Duration) (Credentials, error) {
	if attempts < 1 {
		attempts = 1
	}

	var bridge *huego.Bridge
	if address == "" {
		log.Info().Msg("No bridge address given, discovering")
		b, err := huego.Discover()
		if err != nil {
			return Credentials{}, fmt.Errorf("%w: discover bridge: %w", ErrUnavailable, err)
		}
		bridge = b
		log.Info().Str("address", bridge.Host).Msg("Discovered bridge")
	} else {
		bridge = huego.New(address, "")
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		user, err := bridge.CreateUserContext(ctx, appName)
		if err == nil {
			log.Info().Str("address", bridge.Host).Msg("Registered with bridge")
			return Credentials{Address: bridge.Host, Username: user}, nil
		}
		if !isLinkButtonError(err) {
			return Credentials{}, fmt.Errorf("%w: create user: %w", ErrUnavailable, err)
		}

		log.Info().
			Int("attempt", attempt).
			Int("attempts", attempts).
			Msg("Press the link button on the bridge")

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return Credentials{}, ctx.Err()
		case <-time.After(pause):
		}
	}

	return Credentials{}, ErrLinkButtonNotPressed
}

func isLinkButtonError(err error) bool {
	var apiErr *huego.APIError
	return errors.As(err, &apiErr) && apiErr.Type == apiErrLinkButton
}
