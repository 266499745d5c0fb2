package metrics

import (
	"net/http"
	"time"
)

// Noop is a Recorder that discards everything.
type Noop struct{}

// Ensure Noop implements Recorder interface at compile time
var _ Recorder = Noop{}

// NewNoop returns a Recorder that records nothing.
func NewNoop() Recorder { return Noop{} }

func (Noop) RecordLogin(source, failure string)                                  {}
func (Noop) RecordResolve(provider, outcome string)                              {}
func (Noop) RecordTokenIssued(kind string)                                       {}
func (Noop) RecordRefresh(success bool)                                          {}
func (Noop) RecordAuthentication(result string)                                  {}
func (Noop) RecordProviderCall(provider, op string, d time.Duration, err error)  {}
func (Noop) RecordHTTPRequest(method, route string, status int, d time.Duration) {}
func (Noop) SetChatParticipants(n int)                                           {}
func (Noop) RecordChatMessage()                                                  {}

// Handler answers 404: there is nothing to scrape.
func (Noop) Handler() http.Handler { return http.NotFoundHandler() }
