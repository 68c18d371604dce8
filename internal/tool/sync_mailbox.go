package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/mailmirror/internal/mailsync"
)

const defaultDraftMaxResults = 50

// SyncMailboxRequest controls a mirror refresh.
type SyncMailboxRequest struct {
	Force      bool `json:"force,omitempty" jsonschema:"ignore the minimum interval between runs"`
	MaxResults int  `json:"max_results,omitempty" jsonschema:"maximum number of recent messages to visit"`
	Background bool `json:"background,omitempty" jsonschema:"start the run in the background and return immediately"`
	Drafts     bool `json:"drafts,omitempty" jsonschema:"also refresh provider drafts"`
}

// SyncMailboxResponse reports what the refresh did.
type SyncMailboxResponse struct {
	Ran     bool `json:"ran" jsonschema:"whether a foreground run happened"`
	Started bool `json:"started" jsonschema:"whether a background run was started"`
	Synced  int  `json:"synced" jsonschema:"number of messages visited by the foreground run"`
	Drafts  int  `json:"drafts" jsonschema:"number of drafts visited by the foreground run"`
}

type syncScheduler interface {
	Run(ctx context.Context, job mailsync.Job) (mailsync.Result, bool)
	Start(job mailsync.Job) bool
}

func NewSyncMailbox(sched syncScheduler, draftMaxResults int) *SyncMailbox {
	if draftMaxResults <= 0 {
		draftMaxResults = defaultDraftMaxResults
	}
	return &SyncMailbox{
		sched:           sched,
		draftMaxResults: draftMaxResults,
	}
}

// SyncMailbox refreshes the local mirror from the provider. Message and
// draft refreshes share the scheduler's single-flight gate.
type SyncMailbox struct {
	sched           syncScheduler
	draftMaxResults int
}

func (t *SyncMailbox) SyncMailbox(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SyncMailboxRequest,
) (*mcp.CallToolResult, SyncMailboxResponse, error) {
	job := mailsync.Job{Force: input.Force, MaxResults: input.MaxResults}
	if input.Drafts {
		job.Drafts = t.draftMaxResults
	}

	if input.Background {
		return nil, SyncMailboxResponse{Started: t.sched.Start(job)}, nil
	}

	res, ran := t.sched.Run(ctx, job)
	return nil, SyncMailboxResponse{Ran: ran, Synced: res.Messages, Drafts: res.Drafts}, nil
}
