package domain

import (
	"errors"
	"strings"
)

// RemoteTable is the name of the remote table/collection holding sessions.
const RemoteTable = "chat_sessions"

// GenerationFailedNotice is the user-facing text for an interrupted reply.
const GenerationFailedNotice = "Knowledge retrieval interrupted."

var (
	// ErrConnectivityDegraded: remote unreachable or misconfigured.
	ErrConnectivityDegraded = errors.New("remote store unavailable")
	// ErrSchemaMissing: the chat_sessions table/collection does not exist.
	ErrSchemaMissing = errors.New("remote table " + RemoteTable + " is missing")
	// ErrGenerationInterrupted: the streaming provider failed mid-reply.
	ErrGenerationInterrupted = errors.New("knowledge retrieval interrupted")
	// ErrSynthesisFailed: a speech segment could not be synthesized or played.
	ErrSynthesisFailed = errors.New("speech synthesis failed")
	// ErrLocalParse: cached data is malformed.
	ErrLocalParse = errors.New("local cache is malformed")

	ErrSessionNotFound = errors.New("session not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrEmptyPrompt     = errors.New("prompt and image are both empty")
	ErrBusy            = errors.New("a reply is already streaming")
)

// ClassifyRemoteError maps a failed remote call to the status it implies.
func ClassifyRemoteError(err error) ConnectivityStatus {
	if err == nil {
		return StatusConnected
	}
	if errors.Is(err, ErrSchemaMissing) || strings.Contains(err.Error(), RemoteTable) {
		return StatusMissingTable
	}
	return StatusOffline
}
