package tool_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hal9000y/mailmirror/internal/mail"
	"github.com/hal9000y/mailmirror/internal/mailsync"
	"github.com/hal9000y/mailmirror/internal/tool"
)

func TestSyncMailbox(t *testing.T) {
	var (
		runs   []mailsync.Job
		starts []mailsync.Job
	)
	sched := &schedulerMock{
		RunFunc: func(_ context.Context, job mailsync.Job) (mailsync.Result, bool) {
			runs = append(runs, job)
			return mailsync.Result{Messages: 7, Drafts: 3}, true
		},
		StartFunc: func(job mailsync.Job) bool {
			starts = append(starts, job)
			return true
		},
	}
	session := connect(t, newTestStore(t), &mailboxMock{}, sched)

	resp := decode[tool.SyncMailboxResponse](t, callTool(t, session, "sync_mailbox", tool.SyncMailboxRequest{Force: true, MaxResults: 10, Drafts: true}))
	assert.Equal(t, tool.SyncMailboxResponse{Ran: true, Synced: 7, Drafts: 3}, resp)

	resp = decode[tool.SyncMailboxResponse](t, callTool(t, session, "sync_mailbox", tool.SyncMailboxRequest{Background: true, Drafts: true}))
	assert.Equal(t, tool.SyncMailboxResponse{Started: true}, resp)

	assert.Equal(t, []mailsync.Job{{Force: true, MaxResults: 10, Drafts: 50}}, runs)
	assert.Equal(t, []mailsync.Job{{Drafts: 50}}, starts)
}

func TestSyncMailboxSkipsWhileRunning(t *testing.T) {
	var jobs []mailsync.Job
	sched := &schedulerMock{
		RunFunc: func(_ context.Context, job mailsync.Job) (mailsync.Result, bool) {
			jobs = append(jobs, job)
			return mailsync.Result{}, false
		},
	}
	session := connect(t, newTestStore(t), &mailboxMock{}, sched)

	resp := decode[tool.SyncMailboxResponse](t, callTool(t, session, "sync_mailbox", tool.SyncMailboxRequest{Drafts: true}))
	assert.Equal(t, tool.SyncMailboxResponse{}, resp)
	assert.Equal(t, []mailsync.Job{{Drafts: 50}}, jobs)
}

func TestSetMessageType(t *testing.T) {
	var got []mail.Type
	mailbox := &mailboxMock{
		SetTypeFunc: func(_ context.Context, id int64, typ mail.Type) (mail.Message, error) {
			got = append(got, typ)
			return mail.Message{ID: id, Title: "Lunch?", Sender: "ann@x.com", Type: typ, Priority: 2}, nil
		},
	}
	session := connect(t, newTestStore(t), mailbox, &schedulerMock{})

	resp := decode[tool.MessageResponse](t, callTool(t, session, "set_message_type", tool.SetMessageTypeRequest{ID: 5, Type: " JUNK "}))
	assert.Equal(t, int64(5), resp.Message.ID)
	assert.Equal(t, mail.TypeJunk, resp.Message.Type)
	assert.Equal(t, tool.EmailAddress{Email: "ann@x.com"}, resp.Message.From)

	text := errorText(t, callTool(t, session, "set_message_type", tool.SetMessageTypeRequest{ID: 5, Type: "spam"}))
	assert.Contains(t, text, mail.ErrValidation.Error())
	assert.Equal(t, []mail.Type{mail.TypeJunk}, got)
}

func TestSetReadState(t *testing.T) {
	var got []bool
	mailbox := &mailboxMock{
		SetReadStateFunc: func(_ context.Context, id int64, read bool) (mail.Message, error) {
			if id == 404 {
				return mail.Message{}, fmt.Errorf("store.Get failed: %w", mail.ErrNotFound)
			}
			got = append(got, read)
			return mail.Message{ID: id, IsRead: read}, nil
		},
	}
	session := connect(t, newTestStore(t), mailbox, &schedulerMock{})

	resp := decode[tool.MessageResponse](t, callTool(t, session, "set_read_state", tool.SetReadStateRequest{ID: 1, Read: true}))
	assert.True(t, resp.Message.IsRead)
	resp = decode[tool.MessageResponse](t, callTool(t, session, "set_read_state", tool.SetReadStateRequest{ID: 1, Read: false}))
	assert.False(t, resp.Message.IsRead)
	assert.Equal(t, []bool{true, false}, got)

	text := errorText(t, callTool(t, session, "set_read_state", tool.SetReadStateRequest{ID: 404, Read: true}))
	assert.Contains(t, text, mail.ErrNotFound.Error())
}

func TestClassifyMessage(t *testing.T) {
	mailbox := &mailboxMock{
		ClassifyFunc: func(_ context.Context, id int64) (mail.Message, bool, error) {
			if id == 2 {
				return mail.Message{ID: id, Type: mail.TypeReadOnly, Priority: 1}, false, nil
			}
			return mail.Message{ID: id, Type: mail.TypeResponseNeeded, Priority: 3, Summary: "Pay the invoice."}, true, nil
		},
	}
	session := connect(t, newTestStore(t), mailbox, &schedulerMock{})

	resp := decode[tool.ClassifyMessageResponse](t, callTool(t, session, "classify_message", tool.ClassifyMessageRequest{ID: 1}))
	require.True(t, resp.Applied)
	assert.Equal(t, "Pay the invoice.", resp.Message.Summary)
	assert.Equal(t, 3, resp.Message.Priority)

	resp = decode[tool.ClassifyMessageResponse](t, callTool(t, session, "classify_message", tool.ClassifyMessageRequest{ID: 2}))
	assert.False(t, resp.Applied)
	assert.Equal(t, mail.TypeReadOnly, resp.Message.Type)
}

func TestSuggestReply(t *testing.T) {
	mailbox := &mailboxMock{
		SuggestReplyFunc: func(_ context.Context, id int64, to, cc []string) (string, bool, error) {
			assert.Equal(t, int64(3), id)
			assert.Equal(t, []string{"ann@x.com"}, to)
			assert.Nil(t, cc)
			return "Sounds good, see you then.", true, nil
		},
	}
	session := connect(t, newTestStore(t), mailbox, &schedulerMock{})

	resp := decode[tool.SuggestReplyResponse](t, callTool(t, session, "suggest_reply", tool.SuggestReplyRequest{ID: 3, To: []string{"ann@x.com"}}))
	assert.Equal(t, tool.SuggestReplyResponse{Generated: true, Reply: "Sounds good, see you then."}, resp)
}
