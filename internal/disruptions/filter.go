package disruptions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/lilletrafic/subway-monitor/internal/logging"
	"github.com/lilletrafic/subway-monitor/internal/navitia"
)

const (
	LineME1 = "line:TRA:ME1"
	LineME2 = "line:TRA:ME2"

	// NoService is the only severity effect that produces output.
	NoService = "NO_SERVICE"

	WebChannel = "web et mobile"
)

// MonitoredLines are the two subway lines tracked, in output order.
var MonitoredLines = []string{LineME1, LineME2}

var ErrInvalidDatetime = errors.New("invalid current_datetime")

// LineMessages maps a monitored line id to the messages selected for it,
// in the order the disruptions appear in the response.
type LineMessages map[string][]string

// NewLineMessages returns a map holding every monitored line with an empty list.
func NewLineMessages() LineMessages {
	lines := make(LineMessages, len(MonitoredLines))
	for _, id := range MonitoredLines {
		lines[id] = []string{}
	}
	return lines
}

func IsMonitored(lineID string) bool {
	for _, id := range MonitoredLines {
		if id == lineID {
			return true
		}
	}
	return false
}

type Result struct {
	RequestDatetime string
	Lines           LineMessages
}

// Transform reduces a traffic report to the per-line messages and the minute-truncated
// request datetime.
func Transform(ctx context.Context, reports *navitia.TrafficReports) (Result, error) {
	datetime, err := TruncateSeconds(reports.Context.CurrentDatetime)
	if err != nil {
		return Result{}, err
	}
	return Result{
		RequestDatetime: datetime,
		Lines:           Filter(ctx, reports.Disruptions),
	}, nil
}

// Filter keeps NO_SERVICE disruptions impacting a monitored line and appends the longest
// message of each to every monitored line it impacts.
//
// The longest message is taken over all messages of the disruption, not only the
// web et mobile channel.
func Filter(ctx context.Context, disruptions []navitia.Disruption) LineMessages {
	logger := logging.FromContext(ctx).With(slog.String("component", "disruption_filter"))
	lines := NewLineMessages()

	for _, disruption := range disruptions {
		impacted := monitoredObjects(disruption.ImpactedObjects)
		if len(impacted) == 0 || disruption.Severity.Effect != NoService {
			continue
		}

		for _, object := range impacted {
			lineID := object.PtObject.ID
			logging.LogOperation(logger, "disruption_on_line",
				slog.String("line", lineID),
				slog.String("disruption_id", disruption.ID),
				slog.Int("web_channel_messages", len(WebChannelMessages(disruption.Messages))))

			longest, ok := LongestMessage(disruption.Messages)
			if !ok {
				continue
			}
			logging.LogOperation(logger, "disruption_message_selected",
				slog.String("line", lineID),
				slog.String("text", longest.Text))

			lines[lineID] = append(lines[lineID], longest.Text)
		}
	}

	return lines
}

func monitoredObjects(objects []navitia.ImpactedObject) []navitia.ImpactedObject {
	var out []navitia.ImpactedObject
	for _, object := range objects {
		if IsMonitored(object.PtObject.ID) {
			out = append(out, object)
		}
	}
	return out
}

// LongestMessage returns the message with the most characters; ties keep the first.
func LongestMessage(messages []navitia.Message) (navitia.Message, bool) {
	if len(messages) == 0 {
		return navitia.Message{}, false
	}
	longest, longestLen := messages[0], utf8.RuneCountInString(messages[0].Text)
	for _, m := range messages[1:] {
		if n := utf8.RuneCountInString(m.Text); n > longestLen {
			longest, longestLen = m, n
		}
	}
	return longest, true
}

// WebChannelMessages returns the messages published on the web et mobile channel.
func WebChannelMessages(messages []navitia.Message) []navitia.Message {
	var out []navitia.Message
	for _, m := range messages {
		if m.Channel.Name == WebChannel {
			out = append(out, m)
		}
	}
	return out
}

// TruncateSeconds replaces the trailing two-digit seconds field with "00".
func TruncateSeconds(datetime string) (string, error) {
	if len(datetime) < 2 {
		return "", fmt.Errorf("%w: %q", ErrInvalidDatetime, datetime)
	}
	return datetime[:len(datetime)-2] + "00", nil
}
