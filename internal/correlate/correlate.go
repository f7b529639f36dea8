// Package correlate matches asynchronously-captured request/response bodies
// to buffered network records. Body events originate in a page execution
// context that never sees the lifecycle request ID, so the join is a
// heuristic over (url, method, timestamp proximity) rather than key-based.
// The matcher is kept behind this one package so a stronger join key (for
// example a generated request-scoped token threaded through both contexts)
// could replace it without touching buffer or export logic.
package correlate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/webdiag-project/webdiag/internal/buffer"
	"github.com/webdiag-project/webdiag/internal/capture"
	"github.com/webdiag-project/webdiag/internal/metrics"
	"github.com/webdiag-project/webdiag/internal/redact"
)

// MatchWindowMillis is the maximum distance between a record's start time
// and a body event's timestamp for the two to be considered the same
// request.
const MatchWindowMillis = 5000

// Correlator attaches body-capture events to buffered network records.
type Correlator struct {
	network *buffer.Network
	logger  *zap.Logger
}

// New creates a Correlator over the session network buffers.
func New(network *buffer.Network, logger *zap.Logger) *Correlator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Correlator{network: network, logger: logger}
}

// Correlate scans the session's records for the first one matching the
// event's url and method with a start time within the match window, and
// attaches the truncated bodies to it. No match is a silent discard: body
// capture is expected to race lifecycle tracking and sometimes lose.
//
// First match in buffer order wins. Duplicate concurrent requests to the
// same URL inside the window can therefore be misattributed; this is a
// known limitation of the heuristic, kept deliberately.
func (c *Correlator) Correlate(
	ctx context.Context,
	sessionKey string,
	url string,
	method string,
	eventTimestamp int64,
	requestBody *string,
	responseBody *string,
	maxBodySize int,
) error {
	records, err := c.network.Read(ctx, sessionKey)
	if err != nil {
		return fmt.Errorf("correlate read: %w", err)
	}
	for _, record := range records {
		if record.URL != url || record.Method != method {
			continue
		}
		if absDiff(record.StartTime, eventTimestamp) >= MatchWindowMillis {
			continue
		}
		patch := capture.NetworkPatch{
			RequestBody:  redact.TruncateBody(requestBody, maxBodySize),
			ResponseBody: redact.TruncateBody(responseBody, maxBodySize),
		}
		if err := c.network.Mutate(ctx, sessionKey, record.ID, patch); err != nil {
			return fmt.Errorf("correlate mutate: %w", err)
		}
		metrics.ObserveCorrelation("match")
		return nil
	}
	metrics.ObserveCorrelation("miss")
	c.logger.Debug("body event discarded, no matching record",
		zap.String("session", sessionKey),
		zap.String("method", method),
		zap.String("url", url),
	)
	return nil
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
