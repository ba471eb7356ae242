package logger

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// ZerologHandler adapts a zerolog.Logger to the Logger interface.
type ZerologHandler struct {
	logger zerolog.Logger
}

// New creates a ZerologHandler writing to w with timestamps attached.
func New(w io.Writer) *ZerologHandler {
	return &ZerologHandler{logger: zerolog.New(w).With().Timestamp().Logger()}
}

// FromZerolog wraps an already-configured zerolog.Logger.
func FromZerolog(l zerolog.Logger) *ZerologHandler {
	return &ZerologHandler{logger: l}
}

func (h *ZerologHandler) Debug(msg string, args ...any) {
	withFields(h.logger.Debug(), args).Msg(msg)
}

func (h *ZerologHandler) Info(msg string, args ...any) {
	withFields(h.logger.Info(), args).Msg(msg)
}

func (h *ZerologHandler) Warn(msg string, args ...any) {
	withFields(h.logger.Warn(), args).Msg(msg)
}

func (h *ZerologHandler) Error(msg string, args ...any) {
	withFields(h.logger.Error(), args).Msg(msg)
}

// withFields folds key-value args into the zerolog event. A trailing key
// without a value is logged as-is under the "arg" field.
func withFields(ev *zerolog.Event, args []any) *zerolog.Event {
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		ev = ev.Interface(key, args[i+1])
	}
	if len(args)%2 == 1 {
		ev = ev.Interface("arg", args[len(args)-1])
	}
	return ev
}
