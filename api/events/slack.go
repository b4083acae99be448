package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/slack-go/slack"
)

const slackPostTimeout = 10 * time.Second

type MessagePoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

type SlackSinkConfig struct {
	Logger  *slog.Logger
	Client  MessagePoster
	Channel string
}

func (cfg *SlackSinkConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Client == nil {
		return errors.New("slack client is required")
	}
	if cfg.Channel == "" {
		return errors.New("channel is required")
	}
	return nil
}

// SlackSink announces booked appointments in a Slack channel. Other events are
// ignored. Posting happens in the background and never fails the broadcast.
type SlackSink struct {
	log *slog.Logger
	cfg SlackSinkConfig
	wg  sync.WaitGroup
}

func NewSlackSink(cfg SlackSinkConfig) (*SlackSink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &SlackSink{log: cfg.Logger, cfg: cfg}, nil
}

func (s *SlackSink) ID() string { return "slack:" + s.cfg.Channel }

func (s *SlackSink) Write(frame []byte) error {
	var ev ChangeEvent
	if err := json.Unmarshal(frame, &ev); err != nil {
		s.log.Warn("slack: failed to decode frame", "error", err)
		return nil
	}
	if ev.Type != TypeAppointmentBooked {
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), slackPostTimeout)
		defer cancel()
		_, _, err := s.cfg.Client.PostMessageContext(ctx, s.cfg.Channel,
			slack.MsgOptionText(bookedMessage(ev), false))
		if err != nil {
			s.log.Error("slack: failed to post booking", "id", ev.ID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until in-flight posts finish.
func (s *SlackSink) Wait() {
	s.wg.Wait()
}

func bookedMessage(ev ChangeEvent) string {
	var b strings.Builder
	b.WriteString(":calendar: Appointment booked")
	if ev.Name != "" {
		fmt.Fprintf(&b, " with *%s*", ev.Name)
	}
	if ev.AgentName != "" {
		fmt.Fprintf(&b, " by %s", ev.AgentName)
	}
	if ev.AppointmentDate != "" {
		fmt.Fprintf(&b, " for %s", ev.AppointmentDate)
	}
	return b.String()
}
