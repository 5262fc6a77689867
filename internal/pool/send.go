package pool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"drover/internal/logging"
	"drover/internal/protocol"
)

// Outcome classifies one prompt delivery attempt.
type Outcome int

const (
	// OutcomeConfirmed means the remote payload acknowledged the send.
	OutcomeConfirmed Outcome = iota
	// OutcomeUnconfirmed means no connection accepted the prompt. The
	// caller decides whether that is fatal.
	OutcomeUnconfirmed
	// OutcomeProtocolError means the delivery failed at the transport or
	// script level rather than for lack of an input surface.
	OutcomeProtocolError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeUnconfirmed:
		return "unconfirmed"
	case OutcomeProtocolError:
		return "protocol-error"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// SendResult reports how a delivery went without leaking raw protocol
// JSON upward.
type SendResult struct {
	Outcome Outcome
	Target  string
	Detail  string
}

// Confirmed is a convenience accessor for the common check.
func (r SendResult) Confirmed() bool {
	return r.Outcome == OutcomeConfirmed
}

type probeResult struct {
	HasInput      bool    `json:"hasInput"`
	Score         float64 `json:"score"`
	HasAgentPanel bool    `json:"hasAgentPanel"`
}

type candidate struct {
	conn  *conn
	probe probeResult
}

// SendPrompt probes every live connection for a usable input surface,
// ranks the candidates, and delivers text to the single best one. When
// conversation is non-empty the delivery is pinned to that conversation.
func (p *Pool) SendPrompt(ctx context.Context, text, conversation string) SendResult {
	if p.suspended.Load() {
		return SendResult{Outcome: OutcomeUnconfirmed, Detail: "pool suspended"}
	}

	conns := p.liveConns()
	if len(conns) == 0 {
		return SendResult{Outcome: OutcomeUnconfirmed, Detail: "no live connections"}
	}

	var candidates []candidate
	for _, c := range conns {
		if !c.injected {
			continue
		}
		probeCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout())
		value, err := c.link.Evaluate(probeCtx, "probePromptInput()")
		cancel()
		if err != nil {
			p.logger.Debug("input probe failed",
				logging.String(logging.FieldTarget, c.target.ID),
				logging.Error(err))
			continue
		}
		var probe probeResult
		if err := json.Unmarshal(value, &probe); err != nil {
			p.logger.Debug("input probe unparseable",
				logging.String(logging.FieldTarget, c.target.ID),
				logging.Error(err))
			continue
		}
		if probe.HasInput {
			candidates = append(candidates, candidate{conn: c, probe: probe})
		}
	}

	if len(candidates) == 0 {
		return SendResult{Outcome: OutcomeUnconfirmed, Detail: "no usable prompt input"}
	}

	// Prefer the agent panel, then the strongest input surface; target id
	// breaks ties so repeated sends land on the same connection.
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.probe.HasAgentPanel != b.probe.HasAgentPanel {
			return a.probe.HasAgentPanel
		}
		if a.probe.Score != b.probe.Score {
			return a.probe.Score > b.probe.Score
		}
		return a.conn.target.ID < b.conn.target.ID
	})

	top := candidates[0]
	return p.deliver(ctx, top.conn, text, conversation)
}

func (p *Pool) deliver(ctx context.Context, c *conn, text, conversation string) SendResult {
	textJSON, err := json.Marshal(text)
	if err != nil {
		return SendResult{Outcome: OutcomeProtocolError, Target: c.target.ID, Detail: err.Error()}
	}

	expression := fmt.Sprintf("sendPrompt(%s)", textJSON)
	if conversation != "" {
		convJSON, err := json.Marshal(conversation)
		if err != nil {
			return SendResult{Outcome: OutcomeProtocolError, Target: c.target.ID, Detail: err.Error()}
		}
		expression = fmt.Sprintf("sendPromptToConversation(%s, %s)", textJSON, convJSON)
	}

	evalCtx, cancel := context.WithTimeout(ctx, p.cfg.EvalTimeout())
	defer cancel()
	value, err := c.link.Evaluate(evalCtx, expression)
	switch {
	case err == nil:
	case errors.Is(err, protocol.ErrEvalTimeout):
		return SendResult{Outcome: OutcomeUnconfirmed, Target: c.target.ID, Detail: "delivery timed out"}
	default:
		return SendResult{Outcome: OutcomeProtocolError, Target: c.target.ID, Detail: err.Error()}
	}

	if confirmedValue(value) {
		p.logger.Info("prompt delivered",
			logging.String(logging.FieldTarget, c.target.ID),
			logging.Bool("pinned", conversation != ""))
		return SendResult{Outcome: OutcomeConfirmed, Target: c.target.ID}
	}
	return SendResult{Outcome: OutcomeUnconfirmed, Target: c.target.ID, Detail: "send not acknowledged"}
}

// confirmedValue interprets the payload's acknowledgement. The remote
// side has reported true, 1, and {sent: true} across payload versions.
func confirmedValue(value json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return b
	}
	var n float64
	if err := json.Unmarshal(value, &n); err == nil {
		return n > 0
	}
	var obj struct {
		Sent      bool `json:"sent"`
		Delivered bool `json:"delivered"`
	}
	if err := json.Unmarshal(value, &obj); err == nil {
		return obj.Sent || obj.Delivered
	}
	return false
}
