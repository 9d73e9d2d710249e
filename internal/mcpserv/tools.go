package mcpserv

import (
	"context"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/simon/sshmux/internal/policy"
	"github.com/simon/sshmux/internal/session"
)

func (s *Server) registerTools() {
	s.mcp.AddTool(openSessionTool(), s.handleOpenSession)
	s.mcp.AddTool(sendCommandTool(), s.handleSendCommand)
	s.mcp.AddTool(getSnapshotTool(), s.handleGetSnapshot)
	s.mcp.AddTool(listSessionsTool(), s.handleListSessions)
	s.mcp.AddTool(closeSessionTool(), s.handleCloseSession)
	s.mcp.AddTool(readRemoteFileTool(), s.handleReadRemoteFile)
	s.mcp.AddTool(writeRemoteFileTool(), s.handleWriteRemoteFile)
}

func openSessionTool() mcp.Tool {
	return mcp.NewTool("open_session",
		mcp.WithDescription("Open a new SSH session in a tmux window. Returns the session_id and an initial screen snapshot."),
		mcp.WithString("host",
			mcp.Required(),
			mcp.Description("Host alias or hostname, resolved through the local ssh config"),
		),
		mcp.WithString("username",
			mcp.Description("Username override; defaults to the ssh config's resolution"),
		),
		mcp.WithNumber("port",
			mcp.Description("Port override; defaults to the ssh config's resolution"),
		),
	)
}

func sendCommandTool() mcp.Tool {
	return mcp.NewTool("send_command",
		mcp.WithDescription("Send a command line to a session and return the screen snapshot after a short settle. Completion is never inferred; check the snapshot."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session ID returned by open_session"),
		),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command to send"),
		),
		mcp.WithNumber("lines",
			mcp.Description("Number of lines to capture from the end of the screen (default 40)"),
		),
	)
}

func getSnapshotTool() mcp.Tool {
	return mcp.NewTool("get_snapshot",
		mcp.WithDescription("Get the current screen state of a session without sending any keystrokes."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithNumber("lines",
			mcp.Description("Number of lines to capture from the end of the screen (default 40)"),
		),
	)
}

func listSessionsTool() mcp.Tool {
	return mcp.NewTool("list_sessions",
		mcp.WithDescription("List all active SSH sessions, including ones created by a previous server instance."),
	)
}

func closeSessionTool() mcp.Tool {
	return mcp.NewTool("close_session",
		mcp.WithDescription("Close an SSH session and return its final screen state."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
	)
}

func readRemoteFileTool() mcp.Tool {
	return mcp.NewTool("read_remote_file",
		mcp.WithDescription("Read a file from the remote host through the established session."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("remote_path",
			mcp.Required(),
			mcp.Description("Absolute path of the remote file"),
		),
	)
}

func writeRemoteFileTool() mcp.Tool {
	return mcp.NewTool("write_remote_file",
		mcp.WithDescription("Write content to a file on the remote host through the established session."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("The session ID"),
		),
		mcp.WithString("remote_path",
			mcp.Required(),
			mcp.Description("Absolute path of the remote file"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Content to write"),
		),
		mcp.WithBoolean("append",
			mcp.Description("Append instead of overwrite (default false)"),
		),
	)
}

func (s *Server) handleOpenSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	host := mcp.ParseString(req, "host", "")
	if host == "" {
		return mcp.NewToolResultError("host is required"), nil
	}
	username := mcp.ParseString(req, "username", "")
	port := mcp.ParseInt(req, "port", 0)

	sess, snap, err := s.mgr.OpenSession(ctx, host, username, port)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Session opened. ID: %s\n\nInitial Snapshot:\n%s", sess.ID, snap.Annotated())), nil
}

func (s *Server) handleSendCommand(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	command := mcp.ParseString(req, "command", "")
	lines := mcp.ParseInt(req, "lines", 0)
	if id == "" || command == "" {
		return mcp.NewToolResultError("session_id and command are required"), nil
	}

	res, err := s.mgr.SendCommand(ctx, id, command, lines)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	text := res.Snapshot.Annotated()
	if res.Verdict.Action == policy.Warn {
		text = fmt.Sprintf("[WARNING: %s]\n\n%s", res.Verdict.Reason, text)
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) handleGetSnapshot(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	lines := mcp.ParseInt(req, "lines", 0)
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	snap, err := s.mgr.GetSnapshot(ctx, id, lines)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(snap.Annotated()), nil
}

func (s *Server) handleListSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessions, err := s.mgr.ListSessions(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(sessions) == 0 {
		return mcp.NewToolResultText("No active sessions."), nil
	}
	var b []byte
	for _, sess := range sessions {
		b = fmt.Appendf(b, "- %s (%s)\n", sess.ID, sess.Conn.Target())
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleCloseSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}

	final, err := s.mgr.CloseSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"Session %s closed.\n\nFinal Snapshot:\n%s", id, final.Annotated())), nil
}

func (s *Server) handleReadRemoteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	path := mcp.ParseString(req, "remote_path", "")
	if id == "" || path == "" {
		return mcp.NewToolResultError("session_id and remote_path are required"), nil
	}

	data, err := s.mgr.ReadRemoteFile(ctx, id, path)
	if err != nil {
		if errors.Is(err, session.ErrTransferTimeout) {
			return mcp.NewToolResultError(fmt.Sprintf(
				"No content found for %s or file read timed out.", path)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleWriteRemoteFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := mcp.ParseString(req, "session_id", "")
	path := mcp.ParseString(req, "remote_path", "")
	content := mcp.ParseString(req, "content", "")
	appendMode := mcp.ParseBoolean(req, "append", false)
	if id == "" || path == "" {
		return mcp.NewToolResultError("session_id and remote_path are required"), nil
	}

	if err := s.mgr.WriteRemoteFile(ctx, id, path, []byte(content), appendMode); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Successfully wrote to %s", path)), nil
}
