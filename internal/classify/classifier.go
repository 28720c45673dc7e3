// Package classify scores whether a document's first page is a current PDS for
// a product, using a chat-completion model.
package classify

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/pds-validator/pkg/pipeline/redact"
)

// Completer sends one system + user message pair and returns the assistant text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Classifier validates documents against the PDS rubric.
type Classifier struct {
	completer Completer
	logger    *zap.Logger
}

func New(completer Completer, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{completer: completer, logger: logger}
}

// Classify never fails: backend errors become (0, "Error: <message>", "").
func (c *Classifier) Classify(ctx context.Context, text, product, apir string) Result {
	if c.completer == nil {
		return errorResult(errors.New("no language model configured"))
	}
	reply, err := c.completer.Complete(ctx, SystemPrompt(product, apir), TruncateText(text))
	if err != nil {
		c.logger.Warn("classification call failed", zap.String("product", product), zap.String("error", redact.Secrets(err.Error())))
		return errorResult(err)
	}
	res := ParseResponse(reply)
	if res.Reason == UnparseableReason {
		c.logger.Debug("unparseable model reply", zap.String("product", product), zap.String("reply", truncateForLog(reply)))
	}
	return res
}

func errorResult(err error) Result {
	return Result{Score: 0, Reason: "Error: " + redact.Secrets(err.Error())}
}

func truncateForLog(s string) string {
	if cut, ok := truncateRunes(strings.TrimSpace(s), 200); ok {
		return cut + "..."
	}
	return strings.TrimSpace(s)
}
