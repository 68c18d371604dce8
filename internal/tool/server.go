package tool

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Mirror reads the local message store.
type Mirror interface {
	messageLister
	threadReader
	messageReader
}

// Mailbox performs actions that touch both the store and the provider.
type Mailbox interface {
	attachmentLister
	typeSetter
	readStateSetter
	messageClassifier
	replySuggester
	messageSender
	replySender
	draftSaver
	messageDeleter
}

// Options tune tool defaults.
type Options struct {
	DraftMaxResults int
}

// NewServer creates an MCP server with mailbox tools.
func NewServer(mirror Mirror, mailbox Mailbox, sched syncScheduler, opts Options) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "mailmirror", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_mailbox",
		Description: "Refresh the local mirror with recent provider messages and, optionally, drafts",
	}, NewSyncMailbox(sched, opts.DraftMaxResults).SyncMailbox)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_messages",
		Description: "List mirrored messages, newest first, filtered by type or text",
	}, NewListMessages(mirror).ListMessages)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_thread",
		Description: "Get every mirrored message of a thread, oldest first",
	}, NewGetThread(mirror).GetThread)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_message",
		Description: "Get one mirrored message with its body and, optionally, attachment metadata",
	}, NewGetMessage(mirror, mailbox).GetMessage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_message_type",
		Description: "Set the triage type of a message and move the matching provider labels",
	}, NewSetMessageType(mailbox).SetMessageType)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_read_state",
		Description: "Mark a message read or unread",
	}, NewSetReadState(mailbox).SetReadState)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_message",
		Description: "Summarize, classify and prioritize a message with the language model",
	}, NewClassifyMessage(mailbox).ClassifyMessage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "suggest_reply",
		Description: "Generate reply text for a message and keep it as the pending reply",
	}, NewSuggestReply(mailbox).SuggestReply)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "save_draft",
		Description: "Create or update a draft at the provider, falling back to a local draft",
	}, NewSaveDraft(mailbox).SaveDraft)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_message",
		Description: "Send a new message, keeping a local copy when the provider is unavailable",
	}, NewSendMessage(mailbox).SendMessage)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "send_reply",
		Description: "Reply to a mirrored message within its thread",
	}, NewSendReply(mailbox, mirror).SendReply)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_message",
		Description: "Move a message to the provider trash and delete it locally",
	}, NewDeleteMessage(mailbox).DeleteMessage)

	return server
}
