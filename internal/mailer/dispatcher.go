// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

package mailer

import (
	stdctx "context"
	"log/slog"
	"time"

	"github.com/lumera-id/lumera/internal/platform/apperr"
	"github.com/lumera-id/lumera/internal/platform/config"
)

// # Dispatch Policy

// Dispatcher decides whether magic-link mail is sent inline or in the
// background.
//
// # Modes
//
//   - eager: Send runs on the request goroutine; a transport failure is
//     surfaced to the caller as DELIVERY_FAILED.
//   - async: Send runs on a background goroutine with a bounded timeout;
//     failures are logged and the issued token stays valid, so the user can
//     simply request another link.
type Dispatcher struct {
	mailer  Mailer
	mode    string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDispatcher constructs a [Dispatcher].
//
// # Parameters
//   - mailer: The underlying transport.
//   - mode: config.MailDispatchEager or config.MailDispatchAsync.
//   - timeout: Upper bound for a single delivery attempt.
//   - logger: Structured logger for async failure reporting.
func NewDispatcher(mailer Mailer, mode string, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		mode:    mode,
		timeout: timeout,
		logger:  logger,
	}
}

/*
Dispatch hands a magic-link email to the transport according to the mode.

Parameters:
  - context: context.Context (eager mode only; async detaches from it)
  - to: string
  - magicLinkURL: string

Returns:
  - error: apperr.DeliveryFailed in eager mode; always nil in async mode
*/
func (dispatcher *Dispatcher) Dispatch(context stdctx.Context, to string, magicLinkURL string) error {
	if dispatcher.mode == config.MailDispatchEager {
		sendCtx, cancel := stdctx.WithTimeout(context, dispatcher.timeout)
		defer cancel()

		if err := dispatcher.mailer.Send(sendCtx, to, magicLinkURL); err != nil {
			return apperr.DeliveryFailed(err)
		}
		return nil
	}

	// Async: detach from the request context so the in-flight send survives
	// the HTTP response, but stay bounded by the dispatch timeout.
	go func() {
		sendCtx, cancel := stdctx.WithTimeout(stdctx.Background(), dispatcher.timeout)
		defer cancel()

		if err := dispatcher.mailer.Send(sendCtx, to, magicLinkURL); err != nil {
			dispatcher.logger.Error("mailer_async_send_failed",
				slog.String("to", to),
				slog.Any("error", err),
			)
		}
	}()

	return nil
}
