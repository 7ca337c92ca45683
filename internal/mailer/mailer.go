// Copyright (c) 2026 Lumera. All rights reserved.
// Author: hello@lumera.id

/*
Package mailer defines the outbound email collaborator for Lumera.

The auth domain never talks SMTP. It hands a recipient and a magic-link URL
to a [Mailer], and the binding to a real provider happens at the composition
root. The package ships a development implementation that writes the link to
the structured log, which is what local environments and tests use.

Architecture:

  - Mailer: Minimal transport contract (one Send method).
  - LogMailer: Development implementation backed by slog.
  - Dispatcher: Policy layer choosing eager or async delivery.
*/
package mailer

import (
	"context"
	"log/slog"
)

// # Transport Contract

// Mailer delivers a magic-link email to a single recipient.
type Mailer interface {

	/*
		Send delivers the sign-in link to the recipient.

		Parameters:
		  - context: context.Context
		  - to: string (recipient email address)
		  - magicLinkURL: string (single-use sign-in URL)

		Returns:
		  - error: Transport-level delivery failures
	*/
	Send(context context.Context, to string, magicLinkURL string) error
}

// # Development Implementation

// LogMailer writes magic links to the structured log instead of sending mail.
//
// # Security
//
// The plain link appears in the log, so this implementation must never run
// against production traffic.
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer constructs a [LogMailer].
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send implements [Mailer] by logging the link at INFO level.
func (mailer *LogMailer) Send(context context.Context, to string, magicLinkURL string) error {
	mailer.logger.InfoContext(context, "magic_link_issued",
		slog.String("to", to),
		slog.String("url", magicLinkURL),
	)
	return nil
}
