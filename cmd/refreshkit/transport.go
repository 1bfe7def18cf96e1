package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nats-io/nats.go"

	"github.com/c360/refreshkit/errors"
	"github.com/c360/refreshkit/fetch"
	"github.com/c360/refreshkit/natsclient"
	"github.com/c360/refreshkit/types"
)

// fetchRequest is the payload sent to the upstream KPI backend.
type fetchRequest struct {
	Target string     `json:"target"`
	Tier   types.Tier `json:"tier"`
}

// errorEnvelope is the fault reply shape. A backend that cannot serve a
// target replies with {"error":{"status":503,"message":"..."}} instead of a
// KPI payload; any other reply body is taken as the payload itself.
type errorEnvelope struct {
	Error *struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

// natsTransport fetches KPI payloads over NATS request/reply. One request on
// "<prefix>.<target>" per attempt; the retry budget lives in the fetcher
// above it.
type natsTransport struct {
	client *natsclient.Client
	prefix string
}

func newNATSTransport(client *natsclient.Client, prefix string) *natsTransport {
	return &natsTransport{client: client, prefix: strings.TrimSuffix(prefix, ".")}
}

// Send implements fetch.Transport. Transport faults map onto the retry
// taxonomy: request timeouts read as timeouts, fault envelopes as upstream
// status errors, everything else as network failures.
func (t *natsTransport) Send(ctx context.Context, req fetch.Request) (json.RawMessage, error) {
	payload, err := json.Marshal(fetchRequest{Target: req.Target, Tier: req.Tier})
	if err != nil {
		return nil, errors.WrapInvalid(err, "NATSTransport", "Send", "encoding request")
	}

	reply, err := t.client.Request(ctx, t.subject(req.Target), payload)
	if err != nil {
		if stderrors.Is(err, nats.ErrTimeout) {
			return nil, fmt.Errorf("request timed out: %w", errors.ErrTimeout)
		}
		return nil, err
	}

	var envelope errorEnvelope
	if json.Unmarshal(reply, &envelope) == nil && envelope.Error != nil && envelope.Error.Status != 0 {
		return nil, errors.NewStatusError(envelope.Error.Status)
	}
	return reply, nil
}

func (t *natsTransport) subject(target string) string {
	return t.prefix + "." + subjectToken(target)
}

// subjectToken reduces a target name to the NATS token charset, matching the
// sanitization the notify publisher applies on the outbound side.
var tokenStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func subjectToken(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = tokenStrip.ReplaceAllString(s, "")
	if s == "" {
		return "_"
	}
	return s
}
